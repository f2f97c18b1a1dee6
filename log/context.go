/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import "time"

// Context is an explicitly constructed set of fields describing the surrounding
// operation (request id, tenant, component and so on) that should accompany
// every message logged within that operation.
//
// Each context type is expected to provide its own constructor that maps its
// values to fields explicitly. Optional values are added with the WithOptional*
// methods, which include the key only when the value is present.
type Context struct {
	fields []Field
}

// NewContext creates a new empty logging context.
func NewContext() *Context {
	return &Context{}
}

// With adds arbitrary fields to the context.
func (c *Context) With(fs ...Field) *Context {
	c.fields = append(c.fields, fs...)
	return c
}

// WithString adds a string field to the context.
func (c *Context) WithString(key, value string) *Context {
	c.fields = append(c.fields, String(key, value))
	return c
}

// WithInt adds an int field to the context.
func (c *Context) WithInt(key string, value int) *Context {
	c.fields = append(c.fields, Int(key, value))
	return c
}

// WithBool adds a bool field to the context.
func (c *Context) WithBool(key string, value bool) *Context {
	c.fields = append(c.fields, Bool(key, value))
	return c
}

// WithTime adds a time field to the context.
func (c *Context) WithTime(key string, value time.Time) *Context {
	c.fields = append(c.fields, Time(key, value))
	return c
}

// WithOptionalString adds a string field to the context only if the value is not empty.
func (c *Context) WithOptionalString(key, value string) *Context {
	if value == "" {
		return c
	}
	return c.WithString(key, value)
}

// WithOptionalInt adds an int field to the context only if the value is not nil.
func (c *Context) WithOptionalInt(key string, value *int) *Context {
	if value == nil {
		return c
	}
	return c.WithInt(key, *value)
}

// WithOptionalTime adds a time field to the context only if the value is not zero.
func (c *Context) WithOptionalTime(key string, value time.Time) *Context {
	if value.IsZero() {
		return c
	}
	return c.WithTime(key, value)
}

// Fields returns the accumulated fields.
func (c *Context) Fields() []Field {
	return c.fields
}

// Apply returns a logger that adds the context fields to every logged message.
func (c *Context) Apply(logger FieldLogger) FieldLogger {
	if len(c.fields) == 0 {
		return logger
	}
	return logger.With(c.fields...)
}
