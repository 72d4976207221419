package req

// ProviderEventRequest is the body of a transport provider's status webhook.
type ProviderEventRequest struct {
	Event     string `json:"event" binding:"required"`
	MessageID string `json:"message_id" binding:"required"`
	Reason    string `json:"reason"`
}

// OrderEventRequest is the body of an upstream commerce platform webhook.
type OrderEventRequest struct {
	Event string `json:"event" binding:"required"`
	Order struct {
		ID       string `json:"id" binding:"required"`
		Platform string `json:"platform" binding:"required"`
		Customer struct {
			Name  string `json:"name"`
			Phone string `json:"phone"`
			Email string `json:"email"`
		} `json:"customer"`
	} `json:"order" binding:"required"`
}
