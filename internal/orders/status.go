package orders

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
	StatusDisputed   Status = "disputed"
)

// Operator-path transitions. The webhook does not consult this table: the
// gateway's payment status is authoritative for the customer path.
var validNext = map[Status]map[Status]bool{
	StatusPending:    {StatusProcessing: true, StatusCompleted: true, StatusFailed: true, StatusCancelled: true},
	StatusProcessing: {StatusCompleted: true, StatusFailed: true, StatusCancelled: true},
	StatusCompleted:  {StatusRefunded: true, StatusDisputed: true, StatusCancelled: true},
	StatusFailed:     {StatusPending: true, StatusCancelled: true},
	StatusDisputed:   {StatusCompleted: true, StatusRefunded: true},
	StatusCancelled:  {},
	StatusRefunded:   {},
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Mercado Pago payment statuses.
const (
	GatewayApproved    = "approved"
	GatewayPending     = "pending"
	GatewayAuthorized  = "authorized"
	GatewayInProcess   = "in_process"
	GatewayInMediation = "in_mediation"
	GatewayRejected    = "rejected"
	GatewayCancelled   = "cancelled"
	GatewayRefunded    = "refunded"
	GatewayChargedBack = "charged_back"
)

var fromGateway = map[string]Status{
	GatewayApproved:    StatusCompleted,
	GatewayPending:     StatusPending,
	GatewayAuthorized:  StatusPending,
	GatewayInProcess:   StatusProcessing,
	GatewayInMediation: StatusDisputed,
	GatewayRejected:    StatusFailed,
	GatewayCancelled:   StatusCancelled,
	GatewayRefunded:    StatusRefunded,
	GatewayChargedBack: StatusRefunded,
}

// FromGatewayStatus maps a payment status to an order status. Unknown values
// fall back to pending.
func FromGatewayStatus(s string) Status {
	if st, ok := fromGateway[s]; ok {
		return st
	}
	return StatusPending
}

type FulfillmentStatus string

const (
	FulfillmentUnfulfilled FulfillmentStatus = "unfulfilled"
	FulfillmentPreparing   FulfillmentStatus = "preparing"
	FulfillmentShipped     FulfillmentStatus = "shipped"
	FulfillmentDelivered   FulfillmentStatus = "delivered"
	FulfillmentReturned    FulfillmentStatus = "returned"
)

func (f FulfillmentStatus) Valid() bool {
	switch f {
	case FulfillmentUnfulfilled, FulfillmentPreparing, FulfillmentShipped, FulfillmentDelivered, FulfillmentReturned:
		return true
	}
	return false
}

var labels = map[string]string{
	string(StatusPending):          "Pendiente de pago",
	string(StatusProcessing):       "Pago en proceso",
	string(StatusCompleted):        "Pago aprobado",
	string(StatusFailed):           "Pago rechazado",
	string(StatusCancelled):        "Cancelado",
	string(StatusRefunded):         "Reembolsado",
	string(StatusDisputed):         "En disputa",
	string(FulfillmentUnfulfilled): "Sin preparar",
	string(FulfillmentPreparing):   "En preparación",
	string(FulfillmentShipped):     "Enviado",
	string(FulfillmentDelivered):   "Entregado",
	string(FulfillmentReturned):    "Devuelto",
}

// StatusLabel returns the customer-facing Spanish label for an order or
// fulfillment status.
func StatusLabel(s string) string {
	if l, ok := labels[s]; ok {
		return l
	}
	return "Estado desconocido"
}
