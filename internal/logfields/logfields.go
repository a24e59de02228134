package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyJobID      = "job_id"
	KeyJobName    = "job_name"
	KeyCommit     = "commit"
	KeyRemote     = "remote"
	KeyEventURI   = "event_uri"
	KeyOutcome    = "outcome"
	KeyTrigger    = "trigger"
	KeyQuietSecs  = "quiet_period_s"
	KeyDurationMS = "duration_ms"
	KeyQueueLen   = "queue_len"
	KeyIdentity   = "identity"
	KeyError      = "error"
	KeyMethod     = "method"
	KeyPath       = "path"
	KeyStatus     = "status"
	KeyUserAgent  = "user_agent"
	KeyRemoteAddr = "remote_addr"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func JobID(id string) slog.Attr        { return slog.String(KeyJobID, id) }
func JobName(n string) slog.Attr       { return slog.String(KeyJobName, n) }
func Commit(c string) slog.Attr        { return slog.String(KeyCommit, c) }
func Remote(r string) slog.Attr        { return slog.String(KeyRemote, r) }
func EventURI(u string) slog.Attr      { return slog.String(KeyEventURI, u) }
func Outcome(o string) slog.Attr       { return slog.String(KeyOutcome, o) }
func Trigger(t string) slog.Attr       { return slog.String(KeyTrigger, t) }
func QuietSeconds(s int) slog.Attr     { return slog.Int(KeyQuietSecs, s) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func QueueLen(n int) slog.Attr         { return slog.Int(KeyQueueLen, n) }
func Identity(id string) slog.Attr     { return slog.String(KeyIdentity, id) }
func Method(m string) slog.Attr        { return slog.String(KeyMethod, m) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func Status(code int) slog.Attr        { return slog.Int(KeyStatus, code) }
func UserAgent(ua string) slog.Attr    { return slog.String(KeyUserAgent, ua) }
func RemoteAddr(addr string) slog.Attr { return slog.String(KeyRemoteAddr, addr) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
