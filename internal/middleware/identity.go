package middleware

// identity.go derives the requester identity used to key rate limits.
// Authenticated callers are keyed by user id, anonymous voters by the
// X-Voter-ID header they send, everyone else falls back to "guest".

import (
    "strconv"
    "strings"

    "github.com/labstack/echo/v4"
)

// VoterHeader carries the anonymous voter's client-generated UUID.
const VoterHeader = "X-Voter-ID"

// requesterKey never fails; it is only used for bucketing.
func requesterKey(c echo.Context) string {
    if uid, ok := c.Get(ContextUserID).(uint64); ok && uid > 0 {
        return "user:" + strconv.FormatUint(uid, 10)
    }
    if v := strings.TrimSpace(c.Request().Header.Get(VoterHeader)); v != "" {
        // bounded so a hostile header cannot blow up key size
        if len(v) > 64 {
            v = v[:64]
        }
        return "anon:" + strings.ToLower(v)
    }
    return "guest"
}
