package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"
)

// localeLayout mirrors the en-US locale string, e.g. "3/14/2026, 9:05:03 PM".
const localeLayout = "1/2/2006, 3:04:05 PM"

// Clock reports the server's local time and IANA zone.
type Clock struct {
	now  func() time.Time
	zone func() string
}

func NewClock() *Clock {
	return &Clock{now: time.Now, zone: localZoneName}
}

func (c *Clock) Name() string { return "currentTime" }

func (c *Clock) Description() string {
	return "Get the current date and time"
}

func (c *Clock) Parameters() *Schema {
	return &Schema{Type: "object", Properties: map[string]Property{}}
}

func (c *Clock) Execute(ctx context.Context, args map[string]any) map[string]any {
	return map[string]any{
		"currentTime": c.now().Local().Format(localeLayout),
		"timezone":    c.zone(),
	}
}

// localZoneName resolves the IANA name of the process's local zone.
func localZoneName() string {
	if tz := strings.TrimPrefix(os.Getenv("TZ"), ":"); tz != "" {
		if _, err := time.LoadLocation(tz); err == nil {
			return tz
		}
	}
	if target, err := filepath.EvalSymlinks("/etc/localtime"); err == nil {
		if i := strings.Index(target, "zoneinfo/"); i >= 0 {
			return target[i+len("zoneinfo/"):]
		}
	}
	if name := time.Local.String(); name != "" && name != "Local" {
		return name
	}
	return "UTC"
}
