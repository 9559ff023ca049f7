package webhook

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/rfqdesk/internal/catalog"
	"github.com/zulandar/rfqdesk/internal/extract"
	"github.com/zulandar/rfqdesk/internal/intake"
	"github.com/zulandar/rfqdesk/internal/models"
	"gorm.io/gorm"
)

const (
	sourceWebform = "webform"
	sourceEmail   = "email"
)

type handlers struct {
	db       *gorm.DB
	intake   Intake
	cat      *catalog.Catalog
	onQueued func()
}

// webformRequest is the JSON body posted by the quote request form.
type webformRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Company  string `json:"company"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Message  string `json:"message" binding:"required"`
	Deadline string `json:"deadline"` // RFC 3339 or YYYY-MM-DD
}

// emailRequest is the JSON body posted by an inbound mail relay.
type emailRequest struct {
	MessageID   string            `json:"message_id"`
	From        string            `json:"from" binding:"required"`
	To          string            `json:"to"`
	Subject     string            `json:"subject"`
	Text        string            `json:"text"`
	HTML        string            `json:"html"`
	Date        time.Time         `json:"date"`
	Attachments []emailAttachment `json:"attachments"`
}

type emailAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// intakeResponse summarizes the request an inbound message landed on.
type intakeResponse struct {
	RequestID    string   `json:"request_id"`
	Created      bool     `json:"created"`
	Status       string   `json:"status"`
	Stage        string   `json:"stage"`
	Category     string   `json:"category,omitempty"`
	Completeness float64  `json:"completeness"`
	Missing      []string `json:"missing"`
	ReplyQueued  bool     `json:"reply_queued"`
}

type messageView struct {
	Direction string    `json:"direction"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	Delivered bool      `json:"delivered"`
	CreatedAt time.Time `json:"created_at"`
}

type requestView struct {
	intakeResponse
	Channel        string        `json:"channel"`
	Sender         string        `json:"sender"`
	Urgency        string        `json:"urgency"`
	AutoReply      bool          `json:"auto_reply"`
	LastActivityAt time.Time     `json:"last_activity_at"`
	Messages       []messageView `json:"messages"`
}

func (h *handlers) health(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err == nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) webform(c *gin.Context) {
	var body webformRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}
	sender := firstNonEmpty(strings.ToLower(strings.TrimSpace(body.Email)), strings.TrimSpace(body.Phone))
	if sender == "" {
		badRequest(c, "email or phone is required")
		return
	}
	var deadline *time.Time
	if body.Deadline != "" {
		d, err := parseDeadline(body.Deadline)
		if err != nil {
			badRequest(c, "deadline: "+err.Error())
			return
		}
		deadline = &d
	}

	h.submit(c, intake.Inbound{
		Source:         sourceWebform,
		SourceID:       body.ID,
		SenderIdentity: sender,
		Content:        body.Message,
		Metadata: intake.Metadata{
			From:      firstNonEmpty(body.Name, body.Company, sender),
			ReplyTo:   sender,
			Timestamp: time.Now(),
			Deadline:  deadline,
		},
	})
}

func (h *handlers) email(c *gin.Context) {
	var body emailRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}
	from, err := mail.ParseAddress(body.From)
	if err != nil {
		badRequest(c, "from: "+err.Error())
		return
	}
	content := strings.TrimSpace(body.Text)
	if content == "" && body.HTML != "" {
		content = extract.HTMLToText(body.HTML)
	}
	if content == "" && body.Subject == "" {
		badRequest(c, "email has no text")
		return
	}
	// A new thread's subject often names what is being requested; replies
	// repeat it and add nothing.
	if subject := strings.TrimSpace(body.Subject); subject != "" && !isReply(subject) && !strings.Contains(content, subject) {
		content = strings.TrimSpace(subject + "\n" + content)
	}

	at := body.Date
	if at.IsZero() {
		at = time.Now()
	}
	addr := strings.ToLower(from.Address)
	msg := intake.Inbound{
		Source:         sourceEmail,
		SourceID:       body.MessageID,
		SenderIdentity: addr,
		Content:        content,
		Metadata: intake.Metadata{
			From:      firstNonEmpty(from.Name, addr),
			To:        body.To,
			Subject:   body.Subject,
			ReplyTo:   addr,
			Timestamp: at,
		},
	}
	for _, a := range body.Attachments {
		msg.Attachments = append(msg.Attachments, intake.Attachment{Name: a.Filename, ContentType: a.ContentType, Size: a.Size})
	}
	h.submit(c, msg)
}

func (h *handlers) submit(c *gin.Context, msg intake.Inbound) {
	out, err := h.intake.HandleInbound(c.Request.Context(), msg)
	if err != nil {
		log.Printf("webhook: %s intake from %s: %v", msg.Source, msg.SenderIdentity, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "intake failed"})
		return
	}
	if out.Outbound != nil && h.onQueued != nil {
		h.onQueued()
	}
	resp := h.summarize(out.Request)
	resp.Created = out.Created
	resp.ReplyQueued = out.Outbound != nil
	c.JSON(http.StatusAccepted, resp)
}

func (h *handlers) request(c *gin.Context) {
	req, err := intake.GetRequest(h.db, c.Param("id"))
	if err != nil {
		if errors.Is(err, intake.ErrRequestNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
			return
		}
		log.Printf("webhook: get request %s: %v", c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	view := requestView{
		intakeResponse: h.summarize(req),
		Channel:        req.Channel,
		Sender:         req.SenderIdentity,
		Urgency:        req.Urgency,
		AutoReply:      req.AutoReplyEnabled,
		LastActivityAt: req.LastActivityAt,
		Messages:       []messageView{},
	}
	for _, m := range req.Messages {
		view.Messages = append(view.Messages, messageView{
			Direction: m.Direction,
			Kind:      m.Kind,
			Content:   m.Content,
			Delivered: m.Direction == models.DirectionInbound || m.Processed,
			CreatedAt: m.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, view)
}

func (h *handlers) summarize(req *models.Request) intakeResponse {
	resp := intakeResponse{
		RequestID:    req.ID,
		Status:       req.Status,
		Stage:        req.PipelineStage,
		Category:     req.Category,
		Completeness: req.Completeness,
		Missing:      []string{},
	}
	rule := h.cat.Rule(req.CategoryRuleID)
	for _, id := range intake.DecodeFields(req.MissingFields) {
		label := string(id)
		if rule != nil {
			if f, ok := rule.Field(id); ok && f.Label != "" {
				label = f.Label
			}
		}
		resp.Missing = append(resp.Missing, label)
	}
	return resp
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func parseDeadline(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

// isReply reports whether a subject carries a reply or forward prefix.
func isReply(subject string) bool {
	lower := strings.ToLower(subject)
	for _, p := range []string{"re:", "fw:", "fwd:", "rv:"} {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
