package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/config"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/order"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"money": formatMoney,
}).ParseFS(templatesFS, "templates/*.html"))

type Notifier struct {
	mailer     Mailer
	from       string
	adminEmail string
}

func NewNotifier(mailer Mailer, cfg config.EmailConfig) *Notifier {
	return &Notifier{mailer: mailer, from: cfg.From, adminEmail: cfg.AdminEmail}
}

type lineView struct {
	Name      string
	Quantity  int
	Price     string
	LineTotal decimal.Decimal
}

type orderView struct {
	Order *order.Order
	Lines []lineView
}

func newOrderView(o *order.Order) orderView {
	view := orderView{Order: o, Lines: make([]lineView, 0, len(o.Items))}
	for _, item := range o.Items {
		// битая цена не должна ронять письмо, строку покажем без суммы
		lineTotal, _ := item.LineTotal()
		view.Lines = append(view.Lines, lineView{
			Name:      item.Name,
			Quantity:  item.Quantity,
			Price:     item.Price,
			LineTotal: lineTotal,
		})
	}
	return view
}

func InvoiceSubject(o *order.Order) string {
	return "Order Confirmation #" + o.ShortID()
}

func AdminSubject(o *order.Order) string {
	subject := fmt.Sprintf("New Order #%s - %s", o.ShortID(), formatMoney(o.Total))
	if o.IsTestMode {
		subject = "[TEST MODE] " + subject
	}
	return subject
}

// SendInvoice emails the order confirmation to the customer.
func (n *Notifier) SendInvoice(ctx context.Context, o *order.Order) (string, error) {
	if o.CustomerEmail == "" {
		return "", ErrNoRecipient
	}
	return n.send(ctx, "invoice.html", o.CustomerEmail, InvoiceSubject(o), o)
}

// NotifyAdmin emails the new-order summary to ADMIN_EMAIL.
func (n *Notifier) NotifyAdmin(ctx context.Context, o *order.Order) (string, error) {
	if n.adminEmail == "" {
		return "", ErrAdminEmailNotConfigured
	}
	return n.send(ctx, "admin_order.html", n.adminEmail, AdminSubject(o), o)
}

func (n *Notifier) send(ctx context.Context, tmpl, to, subject string, o *order.Order) (string, error) {
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, tmpl, newOrderView(o)); err != nil {
		return "", fmt.Errorf("notify: failed to render %s: %w", tmpl, err)
	}

	id, err := n.mailer.Send(ctx, Message{From: n.from, To: to, Subject: subject, HTML: body.String()})
	if err != nil {
		return "", err
	}

	log.Info().Str("order_id", o.OrderID).Str("template", tmpl).Str("email_id", id).Msg("notify: email sent")
	return id, nil
}

func formatMoney(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}
