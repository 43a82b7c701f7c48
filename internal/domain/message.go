package domain

import (
	"strings"
)

// Priority is informational: it tags a message and, when priority ordering is
// enabled, decides the order of ready items within one drain pass.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Priorities lists every tier from most to least urgent.
var Priorities = []Priority{PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow}

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Normalized returns p, or NORMAL when p is not a known tier. Use it wherever a
// priority becomes a bounded key such as a metric label.
func (p Priority) Normalized() Priority {
	if p.IsValid() {
		return p
	}
	return PriorityNormal
}

// Level returns 1 (LOW) through 4 (URGENT); unknown values rank as NORMAL.
func (p Priority) Level() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityHigh:
		return 3
	case PriorityUrgent:
		return 4
	}
	return 2
}

// Attachment is carried in-process only. It is never serialized, so a message
// that passes through the store loses its attachments.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// NotificationMessage describes one deliverable message.
type NotificationMessage struct {
	To                      string         `json:"to"`
	Cc                      []string       `json:"cc,omitempty"`
	Bcc                     []string       `json:"bcc,omitempty"`
	From                    string         `json:"from,omitempty"`
	ReplyTo                 string         `json:"reply_to,omitempty"`
	Subject                 string         `json:"subject"`
	Body                    string         `json:"body,omitempty"`
	HTMLBody                string         `json:"html_body,omitempty"`
	TemplateName            string         `json:"template_name,omitempty"`
	TemplateVariables       map[string]any `json:"template_variables,omitempty"`
	Priority                Priority       `json:"priority"`
	RequiresDeliveryReceipt bool           `json:"requires_delivery_receipt,omitempty"`
	Attachments             []Attachment   `json:"-"`
}

func (m NotificationMessage) IsTemplate() bool {
	return strings.TrimSpace(m.TemplateName) != ""
}

func (m NotificationMessage) HasAttachments() bool {
	return len(m.Attachments) > 0
}

// Validate checks the message invariants. The queue never calls it on the
// enqueue path; delivery backends and the inline (queue disabled) path do.
func (m NotificationMessage) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return ErrInvalidRecipient
	}
	if m.Priority != "" && !m.Priority.IsValid() {
		return ErrInvalidPriority
	}
	if m.IsTemplate() {
		for k := range m.TemplateVariables {
			if strings.TrimSpace(k) == "" {
				return ErrInvalidVariables
			}
		}
		return nil
	}
	if strings.TrimSpace(m.Subject) == "" {
		return ErrMissingSubject
	}
	if m.Body == "" && m.HTMLBody == "" {
		return ErrMissingContent
	}
	return nil
}

// WithDefaults returns a copy with an empty priority set to NORMAL.
func (m NotificationMessage) WithDefaults() NotificationMessage {
	if m.Priority == "" {
		m.Priority = PriorityNormal
	}
	return m
}
