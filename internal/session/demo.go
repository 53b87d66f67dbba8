package session

// Identity is a cosmetic display identity for demo deployments. Only the
// visible identity fields are substituted; tokens are never touched.
type Identity struct {
	Email       string
	DisplayName string
}

// ApplyDemoIdentity returns a copy of s with the user's email and display
// metadata replaced by the demo identity. A nil session, a session without
// a user, or an empty identity pass through unchanged.
func ApplyDemoIdentity(s *Session, id Identity) *Session {
	if s == nil || s.User == nil || (id.Email == "" && id.DisplayName == "") {
		return s
	}

	out := s.Clone()

	if id.Email != "" {
		out.User.Email = id.Email
	}

	if id.DisplayName != "" {
		if out.User.Metadata == nil {
			out.User.Metadata = make(map[string]any, 3)
		}

		out.User.Metadata["full_name"] = id.DisplayName
		out.User.Metadata["name"] = id.DisplayName
		out.User.Metadata["display_name"] = id.DisplayName
	}

	return out
}
