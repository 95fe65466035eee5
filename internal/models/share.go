package models

import (
	"fmt"
	"time"
)

type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
	PermissionShare Permission = "share"
)

// ParsePermissions validates a requested permission list. An empty list
// means read only.
func ParsePermissions(raw []string) ([]Permission, error) {
	if len(raw) == 0 {
		return []Permission{PermissionRead}, nil
	}
	seen := make(map[Permission]bool, len(raw))
	perms := make([]Permission, 0, len(raw))
	for _, r := range raw {
		p := Permission(r)
		switch p {
		case PermissionRead, PermissionWrite, PermissionShare:
		default:
			return nil, fmt.Errorf("invalid permission %q", r)
		}
		if !seen[p] {
			seen[p] = true
			perms = append(perms, p)
		}
	}
	return perms, nil
}

// ShareGrant widens a document's visibility to a non-owner. Grants are
// append only.
type ShareGrant struct {
	ID          string       `json:"id"`
	DocumentID  string       `json:"document_id"`
	GranteeID   string       `json:"grantee_id"`
	Permissions []Permission `json:"permissions"`
	GrantedBy   string       `json:"granted_by"`
	CreatedAt   time.Time    `json:"created_at"`
}
