package email

import (
	"bytes"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/acappella-workshop/internal/queue"
)

const confirmationText = `Hi {{.ParentName}},

Thank you! We received your payment of {{money .AmountCents}}.
{{range .Registrations}}
- {{.StudentName}}: {{.WeekLabel}} ({{.PaymentType}}), paid {{money .AmountPaidCents}}{{if gt .BalanceDueCents 0}}, balance due {{money .BalanceDueCents}}{{end}}
{{- end}}

You can see your registrations any time from your account page.

A Cappella Workshop
`

const confirmationHTML = `<p>Hi {{.ParentName}},</p>
<p>Thank you! We received your payment of <strong>{{money .AmountCents}}</strong>.</p>
<ul>
{{- range .Registrations}}
<li>{{.StudentName}}: {{.WeekLabel}} ({{.PaymentType}}), paid {{money .AmountPaidCents}}{{if gt .BalanceDueCents 0}}, balance due <strong>{{money .BalanceDueCents}}</strong>{{end}}</li>
{{- end}}
</ul>
<p>You can see your registrations any time from your account page.</p>
<p>A Cappella Workshop</p>`

var funcs = map[string]any{"money": Money}

var (
	textTmpl = texttemplate.Must(texttemplate.New("text").Funcs(funcs).Parse(confirmationText))
	htmlTmpl = htmltemplate.Must(htmltemplate.New("html").Funcs(funcs).Parse(confirmationHTML))
)

// Money formats cents as dollars, e.g. 40000 -> "$400.00".
func Money(cents int64) string {
	return "$" + decimal.New(cents, -2).StringFixed(2)
}

// Confirmation renders the payment confirmation for ev.
func Confirmation(ev queue.RegistrationPaidEvent, bcc string) (Message, error) {
	if strings.TrimSpace(ev.ParentName) == "" {
		ev.ParentName = "there"
	}
	var txt, html bytes.Buffer
	if err := textTmpl.Execute(&txt, ev); err != nil {
		return Message{}, err
	}
	if err := htmlTmpl.Execute(&html, ev); err != nil {
		return Message{}, err
	}
	subject := "Your A Cappella Workshop registration is confirmed"
	if ev.Kind == "balance" {
		subject = "Balance received: A Cappella Workshop"
	}
	return Message{
		To:       ev.Email,
		Bcc:      bcc,
		Subject:  subject,
		TextBody: txt.String(),
		HTMLBody: html.String(),
		Tag:      "registration-paid",
	}, nil
}
