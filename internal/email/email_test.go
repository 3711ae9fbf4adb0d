package email

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/acappella-workshop/internal/queue"
)

func TestMoney(t *testing.T) {
	assert.Equal(t, "$400.00", Money(40000))
	assert.Equal(t, "$0.05", Money(5))
	assert.Equal(t, "$1234.50", Money(123450))
}

func TestConfirmation(t *testing.T) {
	ev := queue.RegistrationPaidEvent{
		Kind:        "cart",
		Email:       "pat@example.com",
		ParentName:  "Pat <Doe>",
		AmountCents: 55000,
		Registrations: []queue.RegistrationLine{
			{StudentName: "Sam", WeekLabel: "Lexington wk1", PaymentType: "full", AmountPaidCents: 40000},
			{StudentName: "Sam", WeekLabel: "Lexington wk2", PaymentType: "deposit", AmountPaidCents: 15000, BalanceDueCents: 35000},
		},
	}
	m, err := Confirmation(ev, "office@example.com")
	require.NoError(t, err)
	assert.Equal(t, "pat@example.com", m.To)
	assert.Equal(t, "office@example.com", m.Bcc)
	assert.Contains(t, m.TextBody, "$550.00")
	assert.Contains(t, m.TextBody, "balance due $350.00")
	assert.Contains(t, m.HTMLBody, "Pat &lt;Doe&gt;")
	assert.NotContains(t, m.HTMLBody, "<Doe>")
}

func TestMockRecords(t *testing.T) {
	m := NewMock()
	require.NoError(t, m.Send(context.Background(), Message{To: "a@b.c", Subject: "hi"}))
	require.Len(t, m.Sent(), 1)
	assert.Equal(t, "hi", m.Sent()[0].Subject)
}
