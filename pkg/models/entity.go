package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Entity is an organizational node (sede, facultad, carrera,
// departamento, ...). CodeNumeric is stored loosely in the graph (some
// rows carry "213.9" as a string, some as a number); FormatNumeric
// normalizes it for display.
type Entity struct {
	Key         string `json:"_key"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Code        string `json:"code"`
	CodeNumeric any    `json:"code_numeric,omitempty"`
}

// User is a cached identity vertex in dms_users. Key is the sanitized
// Azure GUID.
type User struct {
	Key            string          `json:"_key"`
	GUIDMS         string          `json:"guid_ms,omitempty"`
	Name           string          `json:"name"`
	LastName       string          `json:"last_name,omitempty"`
	Email          string          `json:"email,omitempty"`
	Status         string          `json:"status,omitempty"`
	Source         string          `json:"source,omitempty"`
	JobTitle       string          `json:"job_title,omitempty"`
	Department     string          `json:"department,omitempty"`
	CompanyName    string          `json:"company_name,omitempty"`
	OfficeLocation string          `json:"office_location,omitempty"`
	TenantID       string          `json:"tenant_id,omitempty"`
	DMSPermissions *DMSPermissions `json:"dms_permissions,omitempty"`
	CreatedAt      string          `json:"created_at,omitempty"`
	UpdatedAt      string          `json:"updated_at,omitempty"`
}

// DisplayName joins name and last name the way the UI shows users.
func (u User) DisplayName() string {
	return strings.TrimSpace(strings.TrimSpace(u.Name) + " " + strings.TrimSpace(u.LastName))
}

// DMSPermissions mirrors the permission payload the auth service caches
// per user.
type DMSPermissions struct {
	Roles       []string            `json:"roles"`
	Permissions []string            `json:"permissions"`
	Teams       map[string]TeamData `json:"teams"`
}

type TeamData struct {
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// FormatNumeric renders a loose numeric code: integer-valued floats
// collapse to integer strings (213.0 -> "213"), everything else keeps
// its textual form ("213.9" -> "213.9").
func FormatNumeric(v any) string {
	if v == nil {
		return ""
	}
	s := strings.TrimSpace(fmt.Sprintf("%v", v))
	if s == "" {
		return ""
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return s
}
