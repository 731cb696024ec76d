package user

// Changes is a sparse update: nil fields are left untouched.
type Changes struct {
	FirstNames    *string
	LastNames     *string
	Email         *string
	Username      *string
	PasswordHash  *string
	Phone         *string
	Address       *string
	Age           *int
	Role          *Role
	LearningLevel *LearningLevel
}

func (c Changes) IsEmpty() bool {
	return len(c.Fields()) == 0
}

// Fields lists the names of the set fields in a stable order.
func (c Changes) Fields() []string {
	fields := make([]string, 0, 10)

	if c.FirstNames != nil {
		fields = append(fields, "first_names")
	}
	if c.LastNames != nil {
		fields = append(fields, "last_names")
	}
	if c.Email != nil {
		fields = append(fields, "email")
	}
	if c.Username != nil {
		fields = append(fields, "username")
	}
	if c.PasswordHash != nil {
		fields = append(fields, "password")
	}
	if c.Phone != nil {
		fields = append(fields, "phone")
	}
	if c.Address != nil {
		fields = append(fields, "address")
	}
	if c.Age != nil {
		fields = append(fields, "age")
	}
	if c.Role != nil {
		fields = append(fields, "role")
	}
	if c.LearningLevel != nil {
		fields = append(fields, "learning_level")
	}

	return fields
}

// Apply writes the set fields onto u.
func (c Changes) Apply(u *User) {
	if c.FirstNames != nil {
		u.FirstNames = *c.FirstNames
	}
	if c.LastNames != nil {
		u.LastNames = *c.LastNames
	}
	if c.Email != nil {
		u.Email = *c.Email
	}
	if c.Username != nil {
		u.Username = *c.Username
	}
	if c.PasswordHash != nil {
		u.PasswordHash = *c.PasswordHash
	}
	if c.Phone != nil {
		u.Phone = *c.Phone
	}
	if c.Address != nil {
		u.Address = *c.Address
	}
	if c.Age != nil {
		u.Age = *c.Age
	}
	if c.Role != nil {
		u.Role = *c.Role
	}
	if c.LearningLevel != nil {
		u.LearningLevel = *c.LearningLevel
	}
}
