package email

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/niksmo/twin-supply/internal/core/domain"
	"github.com/niksmo/twin-supply/internal/core/port"
)

const receiptHTML = `<div style="font-family:Arial,sans-serif;max-width:640px;margin:0 auto;">
  <h2>Order Confirmation</h2>
  <p><strong>Order:</strong> {{.Order.ID}}</p>
  <p><strong>Payment:</strong> {{.Order.Payment.Provider}}{{with .Order.Payment.Method}} ({{.}}){{end}}</p>

  <h3>Customer</h3>
  <p style="line-height:1.5;">
    {{.Order.Customer.Name}}<br/>
    {{.Order.Customer.Email}}<br/>
    {{with .Order.Customer.Phone}}{{.}}<br/>{{end}}
    {{.Order.Customer.Address1}} {{.Order.Customer.Address2}}<br/>
    {{.Order.Customer.City}}, {{.Order.Customer.State}} {{.Order.Customer.Zip}}<br/>
    {{.Order.Customer.Country}}
  </p>
  {{with .Order.Notes}}<p><strong>Notes:</strong> {{.}}</p>{{end}}

  <h3>Items</h3>
  <table style="width:100%;border-collapse:collapse;">
    <thead>
      <tr>
        <th style="text-align:left;border-bottom:1px solid #eee;padding:6px 0;">Item</th>
        <th style="text-align:center;border-bottom:1px solid #eee;padding:6px 0;">Qty</th>
        <th style="text-align:right;border-bottom:1px solid #eee;padding:6px 0;">Price</th>
      </tr>
    </thead>
    <tbody>
    {{- range .Order.Items}}
      <tr>
        <td style="padding:6px 0;">{{.Name}}</td>
        <td style="padding:6px 0;text-align:center;">{{.Qty}}</td>
        <td style="padding:6px 0;text-align:right;">{{money $.Currency .Price}}</td>
      </tr>
    {{- end}}
    </tbody>
  </table>

  <h3>Totals</h3>
  <p style="line-height:1.8;">
    Subtotal: {{money .Currency .Order.Subtotal}}<br/>
    Shipping: {{money .Currency .Order.Shipping.Charged}}<br/>
    Tax: {{money .Currency .Order.Tax}}<br/>
    <strong>Total: {{money .Currency .Order.Total}}</strong>
  </p>
</div>
`

var receiptTmpl = template.Must(template.New("receipt").Funcs(template.FuncMap{
	"money": formatMoney,
}).Parse(receiptHTML))

// RenderReceipt renders the HTML body shared by the operator and customer mails.
func RenderReceipt(r port.Receipt) (string, error) {
	r.Currency = domain.NormalizeCurrency(r.Currency)
	var buf bytes.Buffer
	if err := receiptTmpl.Execute(&buf, r); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func formatMoney(currency string, v float64) string {
	if currency == domain.DefaultCurrency {
		return "$" + domain.FormatMoney(v)
	}
	return domain.FormatMoney(v) + " " + currency
}

func methodLabel(o domain.Order) string {
	switch strings.ToLower(o.Payment.Method) {
	case "paypal":
		return "PayPal"
	case "venmo":
		return "Venmo"
	case "cashapp":
		return "Cash App Pay"
	case "card":
		return "Card"
	case "":
		return o.Payment.Provider
	}
	return o.Payment.Method
}
