package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	texttemplate "text/template"

	"github.com/daluzconsciente/tienda-api/internal/orders"
)

type Kind string

const (
	KindConfirmation Kind = "confirmation"
	KindStatusUpdate Kind = "status_update"
	KindShipping     Kind = "shipping"
	KindDelivery     Kind = "delivery"
	KindCustom       Kind = "custom"
)

func (k Kind) Valid() bool {
	switch k {
	case KindConfirmation, KindStatusUpdate, KindShipping, KindDelivery, KindCustom:
		return true
	}
	return false
}

type Data struct {
	Order    *orders.Order
	Subject  string
	Message  string
	StoreURL string
}

var funcs = template.FuncMap{
	"money": func(m orders.Money) string { return "$" + m.String() },
	"label": func(s any) string { return orders.StatusLabel(fmt.Sprint(s)) },
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
}

const layout = `{{define "layout"}}<!doctype html>
<html lang="es"><body style="font-family:Georgia,serif;color:#3b2f2f;max-width:600px;margin:auto">
<h1 style="font-weight:normal">DA LUZ CONSCIENTE</h1>
<p>Hola {{.Order.FirstName}},</p>
{{template "content" .}}
<p style="color:#8a7f7f;font-size:12px">Pedido {{.Order.OrderNumber}}{{if .StoreURL}} · <a href="{{.StoreURL}}/cuenta/pedidos">Ver mis pedidos</a>{{end}}</p>
</body></html>{{end}}`

var bodies = map[Kind]struct{ subject, content string }{
	KindConfirmation: {
		"Confirmamos tu pedido {{.Order.OrderNumber}}",
		`<p>¡Gracias por tu compra! Recibimos el pago de tu pedido.</p>
<table>{{range .Order.Items}}<tr><td>{{.ProductName}}{{with deref .VariantTitle}} ({{.}}){{end}}</td><td>x{{.Quantity}}</td><td>{{money .TotalPrice}}</td></tr>{{end}}
<tr><td colspan="2"><strong>Total</strong></td><td><strong>{{money .Order.TotalAmount}}</strong></td></tr></table>`,
	},
	KindStatusUpdate: {
		"Actualización de tu pedido {{.Order.OrderNumber}}",
		`<p>El estado de tu pedido ahora es: <strong>{{label .Order.Status}}</strong>.</p>
<p>Estado del envío: {{label .Order.FulfillmentStatus}}.</p>`,
	},
	KindShipping: {
		"Tu pedido {{.Order.OrderNumber}} está en camino",
		`<p>Despachamos tu pedido{{with deref .Order.ShippingCarrier}} con {{.}}{{end}}.</p>
{{with deref .Order.TrackingNumber}}<p>Número de seguimiento: <strong>{{.}}</strong></p>{{end}}
{{with deref .Order.TrackingURL}}<p><a href="{{.}}">Seguir mi envío</a></p>{{end}}`,
	},
	KindDelivery: {
		"Tu pedido {{.Order.OrderNumber}} fue entregado",
		`<p>Tu pedido fue entregado. Esperamos que lo disfrutes.</p>`,
	},
	KindCustom: {
		"{{if .Subject}}{{.Subject}}{{else}}Novedades sobre tu pedido {{.Order.OrderNumber}}{{end}}",
		`<p>{{.Message}}</p>`,
	},
}

type compiled struct {
	subject *texttemplate.Template
	body    *template.Template
}

var templates = func() map[Kind]compiled {
	out := make(map[Kind]compiled, len(bodies))
	for k, b := range bodies {
		out[k] = compiled{
			subject: texttemplate.Must(texttemplate.New(string(k) + "-subject").Parse(b.subject)),
			body:    template.Must(template.Must(template.New(string(k)).Funcs(funcs).Parse(layout)).Parse(`{{define "content"}}` + b.content + `{{end}}`)),
		}
	}
	return out
}()

// Render builds the message for an order. The recipient is the order email.
func Render(k Kind, d Data) (Message, error) {
	t, ok := templates[k]
	if !ok {
		return Message{}, fmt.Errorf("unknown mail kind %q", k)
	}
	if d.Order == nil {
		return Message{}, fmt.Errorf("render %s: nil order", k)
	}
	var subj, body bytes.Buffer
	if err := t.subject.Execute(&subj, d); err != nil {
		return Message{}, fmt.Errorf("render %s subject: %w", k, err)
	}
	if err := t.body.ExecuteTemplate(&body, "layout", d); err != nil {
		return Message{}, fmt.Errorf("render %s body: %w", k, err)
	}
	return Message{To: d.Order.Email, Subject: subj.String(), HTML: body.String()}, nil
}
