package email

import (
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"
)

// OrderItem represents an item in an order for email purposes
type OrderItem struct {
	Name     string
	Size     string
	Quantity int
	Price    decimal.Decimal
}

// ConfirmationText is the sentence every payment confirmation opens with
func ConfirmationText(orderID string) string {
	return fmt.Sprintf("Your order with ID %s has been successfully paid for. Thank you for shopping with us.", orderID)
}

// BuildOrderConfirmationBody builds the HTML body for the payment confirmation email
func BuildOrderConfirmationBody(customerName, orderID string, total decimal.Decimal, items []OrderItem) string {
	var itemsHTML strings.Builder
	for _, item := range items {
		name := html.EscapeString(item.Name)
		if item.Size != "" {
			name += " (" + html.EscapeString(item.Size) + ")"
		}
		itemsHTML.WriteString(fmt.Sprintf(
			`<tr>
				<td style="padding: 12px; border-bottom: 1px solid #eee;">%s</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: center;">%d</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">&#8358;%s</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">&#8358;%s</td>
			</tr>`,
			name,
			item.Quantity,
			formatAmount(item.Price),
			formatAmount(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))),
		))
	}

	greeting := "Hello,"
	if customerName != "" {
		greeting = fmt.Sprintf("Hello %s,", html.EscapeString(customerName))
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: linear-gradient(135deg, #667eea 0%%, #764ba2 100%%); padding: 30px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 24px;">Order Confirmation</h1>
	</div>

	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		<p style="margin-top: 0;">%s</p>
		<p>%s</p>

		<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
			<p style="margin: 0; font-size: 14px; color: #666;">Order ID</p>
			<p style="margin: 5px 0 0 0; font-size: 18px; font-weight: bold; font-family: monospace;">%s</p>
		</div>

		<h2 style="font-size: 18px; border-bottom: 2px solid #667eea; padding-bottom: 10px;">Order Summary</h2>

		<table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
			<thead>
				<tr style="background: #f8f9fa;">
					<th style="padding: 12px; text-align: left; font-weight: 600;">Item</th>
					<th style="padding: 12px; text-align: center; font-weight: 600;">Qty</th>
					<th style="padding: 12px; text-align: right; font-weight: 600;">Price</th>
					<th style="padding: 12px; text-align: right; font-weight: 600;">Subtotal</th>
				</tr>
			</thead>
			<tbody>
				%s
			</tbody>
		</table>

		<div style="text-align: right; padding: 20px; background: #f8f9fa; border-radius: 5px;">
			<span style="font-size: 14px; color: #666;">Total</span>
			<span style="font-size: 24px; font-weight: bold; color: #667eea; margin-left: 10px;">&#8358;%s</span>
		</div>

		<hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">

		<p style="font-size: 12px; color: #999; margin-bottom: 0;">
			This is an automated message. Please contact support if you have any questions.
		</p>
	</div>
</body>
</html>`, greeting, ConfirmationText(html.EscapeString(orderID)), html.EscapeString(orderID), itemsHTML.String(), formatAmount(total))
}

// formatAmount renders d with two decimals and comma separators
func formatAmount(d decimal.Decimal) string {
	str := d.StringFixed(2)
	sign := ""
	if strings.HasPrefix(str, "-") {
		sign, str = "-", str[1:]
	}
	intPart, frac, _ := strings.Cut(str, ".")
	if len(intPart) <= 3 {
		return sign + intPart + "." + frac
	}

	var result strings.Builder
	result.WriteString(sign)
	remainder := len(intPart) % 3
	if remainder > 0 {
		result.WriteString(intPart[:remainder])
		result.WriteString(",")
	}
	for i := remainder; i < len(intPart); i += 3 {
		result.WriteString(intPart[i : i+3])
		if i+3 < len(intPart) {
			result.WriteString(",")
		}
	}
	result.WriteString(".")
	result.WriteString(frac)
	return result.String()
}

// BuildActionBody builds the HTML body for single-link account emails
func BuildActionBody(name, intro, action, link, outro string) string {
	greeting := "Hello,"
	if name != "" {
		greeting = fmt.Sprintf("Hello %s,", html.EscapeString(name))
	}
	href := html.EscapeString(link)

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<p>%s</p>
	<p>%s</p>
	<p><a href="%s" style="padding: 10px 15px; background: #667eea; color: white; text-decoration: none; border-radius: 5px;">%s</a></p>
	<p style="font-size: 12px; color: #999;">%s</p>
	<p style="font-size: 12px; color: #999; word-break: break-all;">%s</p>
</body>
</html>`, greeting, html.EscapeString(intro), href, html.EscapeString(action), html.EscapeString(outro), href)
}
