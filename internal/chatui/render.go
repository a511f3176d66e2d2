package chatui

import (
	"encoding/json"
	"fmt"

	"toolchat-backend/internal/models"
)

// RenderPart formats one message part for display. Tool invocations show the
// tool name on its own line followed by the indented JSON result.
func RenderPart(part models.Part) string {
	switch part.Type {
	case models.PartText:
		return part.Text
	case models.PartToolInvocation:
		inv := part.ToolInvocation
		if inv == nil {
			return ""
		}
		if inv.State != models.ToolStateResult {
			return inv.ToolName + "\n..."
		}
		body, err := json.MarshalIndent(inv.Result, "", "  ")
		if err != nil {
			return fmt.Sprintf("%s\n%v", inv.ToolName, inv.Result)
		}
		return inv.ToolName + "\n" + string(body)
	default:
		return ""
	}
}
