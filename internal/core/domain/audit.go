package domain

import "time"

const (
	AuditActionPublish = "publish"
	AuditActionDelete  = "delete"
)

type AuditEvent struct {
	ID       int64     `json:"id"`
	Document string    `json:"document"`
	Revision string    `json:"revision"`
	Action   string    `json:"action"`
	Actor    string    `json:"actor"`
	At       time.Time `json:"at"`
}

type AuditFilter struct {
	Document string
	AfterID  int64
	Limit    int
}
