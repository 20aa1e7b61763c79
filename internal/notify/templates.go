package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/korelia/storefront-backend/internal/models"
)

// Templates renders the transactional messages for one shop.
type Templates struct {
	ShopName    string
	FrontendURL string
}

// FormatAmount renders minor units as "45.99 EUR".
func FormatAmount(minor int64, currency string) string {
	return decimal.New(minor, -2).StringFixed(2) + " " + strings.ToUpper(currency)
}

var orderHTML = template.Must(template.New("order").Parse(`<p>Hi {{.Name}},</p>
<p>Thank you for your order at {{.Shop}}. We are preparing it now.</p>
<table>
{{range .Lines}}<tr><td>{{.Label}}</td><td>{{.Amount}}</td></tr>
{{end}}<tr><td>Shipping</td><td>{{.Shipping}}</td></tr>
<tr><td><strong>Total</strong></td><td><strong>{{.Total}}</strong></td></tr>
</table>
{{if .Points}}<p>You earned {{.Points}} reward points with this order.</p>{{end}}
<p>Order reference: {{.OrderID}}</p>`))

var linkHTML = template.Must(template.New("link").Parse(`<p>Hi {{.Name}},</p>
<p>{{.Intro}}</p>
<p><a href="{{.Link}}">{{.Action}}</a></p>
<p>{{.Footer}}</p>`))

var shippedHTML = template.Must(template.New("shipped").Parse(`<p>Hi {{.Name}},</p>
<p>Your {{.Shop}} order {{.OrderID}} is on its way.</p>
{{if .Carrier}}<p>Carrier: {{.Carrier}}{{if .Number}}, tracking number {{.Number}}{{end}}</p>{{end}}
{{if .URL}}<p><a href="{{.URL}}">Track your parcel</a></p>{{end}}`))

type orderLine struct {
	Label  string
	Amount string
}

func (t Templates) OrderConfirmation(o *models.Order) Message {
	var lines []orderLine
	if len(o.Items) > 0 {
		for _, it := range o.Items {
			name := it.Name
			if name == "" {
				name = it.ProductID
			}
			lines = append(lines, orderLine{
				Label:  fmt.Sprintf("%d × %s", it.Quantity, name),
				Amount: FormatAmount(it.UnitAmount*int64(it.Quantity), o.Currency),
			})
		}
	} else {
		for _, li := range o.StripeLineItems {
			lines = append(lines, orderLine{
				Label:  fmt.Sprintf("%d × %s", li.Quantity, li.Description),
				Amount: FormatAmount(li.AmountTotal, o.Currency),
			})
		}
	}

	points := 0
	if o.RewardsPoints != nil {
		points = *o.RewardsPoints
	}
	data := map[string]interface{}{
		"Name":     greetingName(o.CustomerName),
		"Shop":     t.ShopName,
		"Lines":    lines,
		"Shipping": FormatAmount(o.ShippingCost, o.Currency),
		"Total":    FormatAmount(o.AmountTotal, o.Currency),
		"Points":   points,
		"OrderID":  o.ID,
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Hi %s,\n\nThank you for your order at %s.\n\n", greetingName(o.CustomerName), t.ShopName)
	for _, l := range lines {
		fmt.Fprintf(&text, "  %s  %s\n", l.Label, l.Amount)
	}
	fmt.Fprintf(&text, "  Shipping  %s\n  Total  %s\n\n", data["Shipping"], data["Total"])
	if points > 0 {
		fmt.Fprintf(&text, "You earned %d reward points with this order.\n", points)
	}
	fmt.Fprintf(&text, "Order reference: %s\n", o.ID)

	return Message{
		Kind:    KindOrderConfirmation,
		To:      o.Email,
		Subject: fmt.Sprintf("%s: order confirmed", t.ShopName),
		Text:    text.String(),
		HTML:    render(orderHTML, data),
	}
}

func (t Templates) EmailVerification(to, name, token string) Message {
	link := t.FrontendURL + "/verify-email?token=" + token
	return t.linkMessage(KindEmailVerification, to, name, link,
		fmt.Sprintf("%s: confirm your email", t.ShopName),
		"Please confirm your email address to finish setting up your account.",
		"Confirm my email",
		"This link expires in 24 hours.")
}

func (t Templates) PasswordReset(to, name, token string) Message {
	link := t.FrontendURL + "/reset-password?token=" + token
	return t.linkMessage(KindPasswordReset, to, name, link,
		fmt.Sprintf("%s: reset your password", t.ShopName),
		"We received a request to reset your password.",
		"Choose a new password",
		"This link expires in 1 hour. If you did not ask for it, you can ignore this email.")
}

func (t Templates) OrderShipped(o *models.Order) Message {
	data := map[string]interface{}{
		"Name":    greetingName(o.CustomerName),
		"Shop":    t.ShopName,
		"OrderID": o.ID,
	}
	var text strings.Builder
	fmt.Fprintf(&text, "Hi %s,\n\nYour %s order %s is on its way.\n", greetingName(o.CustomerName), t.ShopName, o.ID)
	if tr := o.Tracking; tr != nil {
		data["Carrier"] = tr.Carrier
		data["Number"] = tr.Number
		data["URL"] = tr.URL
		if tr.Carrier != "" {
			fmt.Fprintf(&text, "Carrier: %s\n", tr.Carrier)
		}
		if tr.Number != "" {
			fmt.Fprintf(&text, "Tracking number: %s\n", tr.Number)
		}
		if tr.URL != "" {
			fmt.Fprintf(&text, "Track it: %s\n", tr.URL)
		}
	}
	return Message{
		Kind:    KindOrderShipped,
		To:      o.Email,
		Subject: fmt.Sprintf("%s: your order has shipped", t.ShopName),
		Text:    text.String(),
		HTML:    render(shippedHTML, data),
	}
}

func (t Templates) linkMessage(kind, to, name, link, subject, intro, action, footer string) Message {
	data := map[string]string{
		"Name":   greetingName(name),
		"Intro":  intro,
		"Link":   link,
		"Action": action,
		"Footer": footer,
	}
	text := fmt.Sprintf("Hi %s,\n\n%s\n\n%s: %s\n\n%s\n", greetingName(name), intro, action, link, footer)
	return Message{Kind: kind, To: to, Subject: subject, Text: text, HTML: render(linkHTML, data)}
}

func render(tpl *template.Template, data interface{}) string {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return ""
	}
	return buf.String()
}

func greetingName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "there"
	}
	return name
}
