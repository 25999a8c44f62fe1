package models

import "context"

type operatorContextKey struct{}

// WithOperator attaches the id of the admin acting on a request. It ends up
// in transaction notes and mirror metadata.
func WithOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, operatorContextKey{}, operator)
}

// GetOperator returns the acting admin, or "" if none was attached.
func GetOperator(ctx context.Context) string {
	op, _ := ctx.Value(operatorContextKey{}).(string)
	return op
}
