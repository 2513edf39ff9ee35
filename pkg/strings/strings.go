// Package strings provides pooled string building utilities for cartsync hot paths
package strings

import (
	"fmt"
	"strconv"
	"sync"
	"unsafe"
)

// BytesToString converts byte slice to string without allocation
// WARNING: The returned string shares memory with the byte slice.
// Do not modify the byte slice after calling this function.
func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return *(*string)(unsafe.Pointer(&b))
}

// StringToBytes converts string to byte slice without allocation
// WARNING: The returned byte slice shares memory with the string.
// Do not modify the returned slice.
func StringToBytes(s string) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

// Builder provides efficient string building backed by a reusable byte buffer
type Builder struct {
	buf []byte
}

// NewBuilder creates a new string builder
func NewBuilder(capacity int) *Builder {
	return &Builder{
		buf: make([]byte, 0, capacity),
	}
}

// WriteString appends a string to the builder
func (b *Builder) WriteString(s string) {
	b.buf = append(b.buf, StringToBytes(s)...)
}

// WriteByte appends a single byte
func (b *Builder) WriteByte(c byte) {
	b.buf = append(b.buf, c)
}

// Write implements io.Writer interface
func (b *Builder) Write(p []byte) (n int, err error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// String returns the built string using zero-copy conversion
func (b *Builder) String() string {
	return BytesToString(b.buf)
}

// Len returns the length of the built string
func (b *Builder) Len() int {
	return len(b.buf)
}

// Reset resets the builder for reuse
func (b *Builder) Reset() {
	b.buf = b.buf[:0]
}

// Clone creates a copy of a string (useful when you need to own the memory)
func Clone(s string) string {
	if len(s) == 0 {
		return ""
	}
	b := make([]byte, len(s))
	copy(b, StringToBytes(s))
	return BytesToString(b)
}

// Pooled builders sized for the three common cartsync cases: cache keys and
// log fragments, single upsert statements, and full multi-row batch statements.
var (
	smallBuilderPool = &sync.Pool{
		New: func() interface{} {
			return NewBuilder(1024) // 1KB
		},
	}

	mediumBuilderPool = &sync.Pool{
		New: func() interface{} {
			return NewBuilder(16 * 1024) // 16KB
		},
	}

	largeBuilderPool = &sync.Pool{
		New: func() interface{} {
			return NewBuilder(64 * 1024) // 64KB
		},
	}
)

// BuilderSize represents different builder sizes
type BuilderSize int

const (
	Small  BuilderSize = iota // < 1KB
	Medium                    // 1KB - 16KB
	Large                     // 16KB+
)

func poolFor(size BuilderSize) *sync.Pool {
	switch size {
	case Medium:
		return mediumBuilderPool
	case Large:
		return largeBuilderPool
	default:
		return smallBuilderPool
	}
}

// SizeFor picks a builder size for an estimated output length
func SizeFor(estimated int) BuilderSize {
	if estimated > 16*1024 {
		return Large
	}
	if estimated > 1024 {
		return Medium
	}
	return Small
}

// GetBuilder retrieves a pooled builder of the specified size
func GetBuilder(size BuilderSize) *Builder {
	builder := poolFor(size).Get().(*Builder)
	builder.Reset()
	return builder
}

// PutBuilder returns a builder to the appropriate pool
func PutBuilder(builder *Builder, size BuilderSize) {
	if builder == nil {
		return
	}
	builder.Reset()
	poolFor(size).Put(builder)
}

// Sprintf provides a pooled alternative to fmt.Sprintf
func Sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}

	size := SizeFor(len(format) + len(args)*16)
	builder := GetBuilder(size)
	defer PutBuilder(builder, size)

	fmt.Fprintf(builder, format, args...)

	return Clone(builder.String())
}

// JoinPooled efficiently joins strings using a pooled builder
func JoinPooled(strings []string, delimiter string) string {
	if len(strings) == 0 {
		return ""
	}
	if len(strings) == 1 {
		return strings[0]
	}

	totalLen := (len(strings) - 1) * len(delimiter)
	for _, s := range strings {
		totalLen += len(s)
	}

	size := SizeFor(totalLen)
	builder := GetBuilder(size)
	defer PutBuilder(builder, size)

	builder.WriteString(strings[0])
	for i := 1; i < len(strings); i++ {
		builder.WriteString(delimiter)
		builder.WriteString(strings[i])
	}

	return Clone(builder.String())
}

// SQLBuilder provides pooled SQL statement building for the sink layer
type SQLBuilder struct {
	builder *Builder
	size    BuilderSize
}

// NewSQLBuilder creates a new SQL builder sized for the estimated statement length
func NewSQLBuilder(estimatedLength int) *SQLBuilder {
	size := SizeFor(estimatedLength)
	return &SQLBuilder{
		builder: GetBuilder(size),
		size:    size,
	}
}

// WriteQuery writes a SQL query part
func (sb *SQLBuilder) WriteQuery(query string) *SQLBuilder {
	sb.builder.WriteString(query)
	return sb
}

// WriteByte writes a single byte
func (sb *SQLBuilder) WriteByte(c byte) *SQLBuilder {
	sb.builder.WriteByte(c)
	return sb
}

// WriteIdentifier writes an identifier quoted with the given quote byte
// ('"' for PostgreSQL, '`' for MySQL)
func (sb *SQLBuilder) WriteIdentifier(name string, quote byte) *SQLBuilder {
	sb.builder.WriteByte(quote)
	sb.builder.WriteString(name)
	sb.builder.WriteByte(quote)
	return sb
}

// WriteInt writes an integer value
func (sb *SQLBuilder) WriteInt(value int64) *SQLBuilder {
	sb.builder.WriteString(strconv.FormatInt(value, 10))
	return sb
}

// String returns the built SQL statement
func (sb *SQLBuilder) String() string {
	return Clone(sb.builder.String())
}

// Close releases the builder back to the pool
func (sb *SQLBuilder) Close() {
	if sb.builder != nil {
		PutBuilder(sb.builder, sb.size)
		sb.builder = nil
	}
}
