// Package types holds the data structures shared by the record store
// client, the synchronization cache, the controller and the reference
// server. Keeping them in one place prevents import cycles.
package types

// Record is one student as stored by the remote record store.
//
// ID and CreatedAt are assigned by the server; the client only ever holds
// cached copies.
type Record struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Address   string `json:"address"`
	Birthdate string `json:"birthdate"`
	Avatar    string `json:"avatar"`
	CreatedAt string `json:"createdAt"`
}

// Fields is the editable part of a Record. It is the body of create and
// update requests and the payload of the edit draft.
//
// validate:"required" marks the fields that must be non-empty before a
// submit is allowed to reach the network. Avatar is optional.
type Fields struct {
	Name      string `json:"name"      validate:"required"`
	Email     string `json:"email"     validate:"required"`
	Address   string `json:"address"   validate:"required"`
	Birthdate string `json:"birthdate" validate:"required"`
	Avatar    string `json:"avatar"`

	// CreatedAt is only sent on create; the server keeps it if present.
	CreatedAt string `json:"createdAt,omitempty"`
}

// Fields returns the editable fields of r, used to populate an edit draft.
func (r Record) Fields() Fields {
	return Fields{
		Name:      r.Name,
		Email:     r.Email,
		Address:   r.Address,
		Birthdate: r.Birthdate,
		Avatar:    r.Avatar,
	}
}

// Field names accepted by Fields.Set.
const (
	FieldName      = "name"
	FieldEmail     = "email"
	FieldAddress   = "address"
	FieldBirthdate = "birthdate"
	FieldAvatar    = "avatar"
)

// Set assigns value to the field with the given JSON name.
// It reports false if name is not an editable field.
func (f *Fields) Set(name, value string) bool {
	switch name {
	case FieldName:
		f.Name = value
	case FieldEmail:
		f.Email = value
	case FieldAddress:
		f.Address = value
	case FieldBirthdate:
		f.Birthdate = value
	case FieldAvatar:
		f.Avatar = value
	default:
		return false
	}
	return true
}

// Get returns the value of the field with the given JSON name.
func (f Fields) Get(name string) (string, bool) {
	switch name {
	case FieldName:
		return f.Name, true
	case FieldEmail:
		return f.Email, true
	case FieldAddress:
		return f.Address, true
	case FieldBirthdate:
		return f.Birthdate, true
	case FieldAvatar:
		return f.Avatar, true
	}
	return "", false
}
