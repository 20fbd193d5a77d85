package checkout

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/stelinglobal/storefront/internal/domain/cart"
)

// FormatINR renders an amount the way Indian locales do: the last three
// integer digits grouped, then groups of two (1,23,456), with at most three
// fraction digits and no trailing zeros.
func FormatINR(d decimal.Decimal) string {
	d = d.Round(3)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}

	s := d.String()
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	b.WriteString(sign)
	if len(intPart) <= 3 {
		b.WriteString(intPart)
	} else {
		head, tail := intPart[:len(intPart)-3], intPart[len(intPart)-3:]
		lead := len(head) % 2
		if lead > 0 {
			b.WriteString(head[:lead])
		}
		for i := lead; i < len(head); i += 2 {
			if b.Len() > len(sign) {
				b.WriteByte(',')
			}
			b.WriteString(head[i : i+2])
		}
		b.WriteByte(',')
		b.WriteString(tail)
	}
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}

// Summary renders the plain-text order message sent to the merchant for a
// manual handoff.
func Summary(f Form, state cart.State) string {
	c := f.Customer()

	var b strings.Builder
	fmt.Fprintf(&b, "New Order from %s\n\nItems:\n", c.Company)
	for i, l := range state.Lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s x%d = ₹%s", l.Product.Name, l.Quantity, FormatINR(l.Subtotal()))
	}
	fmt.Fprintf(&b, "\n\nTotal: ₹%s\n\n", FormatINR(state.TotalPrice()))
	fmt.Fprintf(&b, "Contact: %s\nPhone: %s\nEmail: %s\nGST: %s\n", c.Name, c.Phone, c.Email, c.GST)
	fmt.Fprintf(&b, "Address: %s, %s\n\n", c.ShippingAddress(), c.Country)
	fmt.Fprintf(&b, "Payment Method: %s", f.PaymentMethod.Label())
	return b.String()
}

// WhatsAppLink builds a click-to-chat link prefilled with message.
func WhatsAppLink(number, message string) string {
	return "https://wa.me/" + number + "?text=" + encodeURIComponent(message)
}

// encodeURIComponent escapes like the browser function of the same name,
// which leaves !'()* unescaped and encodes spaces as %20.
func encodeURIComponent(s string) string {
	escaped := url.QueryEscape(s)
	escaped = strings.ReplaceAll(escaped, "+", "%20")
	for _, r := range []struct{ from, to string }{
		{"%21", "!"}, {"%27", "'"}, {"%28", "("}, {"%29", ")"}, {"%2A", "*"},
	} {
		escaped = strings.ReplaceAll(escaped, r.from, r.to)
	}
	return escaped
}
