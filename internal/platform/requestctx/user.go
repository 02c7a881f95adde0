// Package requestctx carries request-scoped identity through contexts.
package requestctx

import (
	"context"

	"golang.org/x/text/language"
)

type userIDContextKey struct{}

type languageContextKey struct{}

// WithUserID stores the verified caller identity in context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, userIDContextKey{}, userID)
}

// UserIDFromContext returns the caller identity stored in context.
func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(userIDContextKey{}).(string)
	return value
}

// WithLanguage stores the caller's preferred language in context.
func WithLanguage(ctx context.Context, tag language.Tag) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, languageContextKey{}, tag)
}

// LanguageFromContext returns the stored language, or English.
func LanguageFromContext(ctx context.Context) language.Tag {
	if ctx == nil {
		return language.English
	}
	tag, ok := ctx.Value(languageContextKey{}).(language.Tag)
	if !ok {
		return language.English
	}
	return tag
}
