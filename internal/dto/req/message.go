package req

type SendMessageRequest struct {
	BusinessID int64  `json:"business_id" binding:"required"`
	Channel    string `json:"channel" binding:"required"`
	Recipient  string `json:"recipient" binding:"required"`
	Subject    string `json:"subject"`
	Content    string `json:"content" binding:"required"`
	OrderID    string `json:"order_id"`
	Platform   string `json:"platform"`
}

type ListMessagesRequest struct {
	BusinessID int64  `form:"business_id"`
	Channel    string `form:"channel"`
	Status     string `form:"status"`
	Limit      int    `form:"limit"`
	Offset     int    `form:"offset"`
}

type CancelJobRequest struct {
	OrderID  string `json:"order_id" binding:"required"`
	Platform string `json:"platform" binding:"required"`
	Reason   string `json:"reason"`
}
