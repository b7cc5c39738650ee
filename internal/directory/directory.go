// Package directory declares the entities sheetql knows without a schema
// file: a small user directory with departments, roles, profiles, and
// authored posts with comments.
package directory

import (
	"github.com/sheetql/sheetql/pkg/relation"
)

const (
	User       = "user"
	Department = "department"
	Role       = "role"
	Profile    = "profile"
	Post       = "post"
	Comment    = "comment"
)

// Registry returns a fresh registry of the built-in entities.
func Registry() *relation.Registry {
	user := relation.NewEntity(User, "users").
		BelongsTo("department", Department, "department_id", "id").
		BelongsTo("role", Role, "role_id", "id").
		HasOne("profile", Profile, "user_id", "id").
		HasMany("posts", Post, "user_id", "id")

	department := relation.NewEntity(Department, "departments").
		HasMany("users", User, "department_id", "id")

	role := relation.NewEntity(Role, "roles").
		HasMany("users", User, "role_id", "id")

	profile := relation.NewEntity(Profile, "profiles").
		BelongsTo("user", User, "user_id", "id")

	post := relation.NewEntity(Post, "posts").
		BelongsTo("author", User, "user_id", "id").
		HasMany("comments", Comment, "post_id", "id")

	comment := relation.NewEntity(Comment, "comments").
		BelongsTo("post", Post, "post_id", "id").
		BelongsTo("author", User, "user_id", "id")

	return relation.NewRegistry(user, department, role, profile, post, comment)
}
