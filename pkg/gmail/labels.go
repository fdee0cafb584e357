package gmail

import (
	"strings"

	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

var systemLabelIds = map[string]bool{
	"INBOX":     true,
	"SENT":      true,
	"DRAFT":     true,
	"SPAM":      true,
	"TRASH":     true,
	"STARRED":   true,
	"UNREAD":    true,
	"IMPORTANT": true,
	"CHAT":      true,
}

// ClassifyLabel reports whether a label id belongs to Gmail's fixed system set
func ClassifyLabel(labelId string) types.LabelType {
	if systemLabelIds[labelId] || strings.HasPrefix(labelId, "CATEGORY_") {
		return types.LabelTypeSystem
	}
	return types.LabelTypeUser
}
