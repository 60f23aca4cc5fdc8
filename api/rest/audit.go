package rest

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/socialgraph/audit"
	mw "github.com/kasuganosora/socialgraph/middleware"
)

// Auditor records an action; *audit.Service implements it.
type Auditor interface {
	Log(entry audit.Entry)
}

// auditTrail writes one entry per handled action. A nil Auditor is a no-op.
type auditTrail struct {
	auditor Auditor
}

func (a auditTrail) record(c *gin.Context, start time.Time, action string, userID int64, req, resp interface{}, err error) {
	if a.auditor == nil {
		return
	}
	entry := audit.Entry{
		TraceID:    mw.GetTraceID(c),
		Action:     action,
		Request:    req,
		Response:   resp,
		IP:         c.ClientIP(),
		DurationMs: int(time.Since(start).Milliseconds()),
	}
	if userID != 0 {
		entry.UserID = &userID
	}
	if err != nil {
		entry.Error = err.Error()
	}
	a.auditor.Log(entry)
}
