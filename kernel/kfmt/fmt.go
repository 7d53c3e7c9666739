// Package kfmt implements the allocation-free formatted output used by the
// memory subsystem for its log lines.
package kfmt

import "io"

// numBufSize is large enough to hold any 64-bit value in base 10 or 16 plus a
// sign and the maximum supported padding.
const numBufSize = 32

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")

	numBuf  [numBufSize]byte
	charBuf [1]byte

	// earlyBuffer captures Printf output until an output sink is attached.
	earlyBuffer ringBuffer

	// outputSink receives the output of Printf. While nil, output goes to
	// earlyBuffer.
	outputSink io.Writer
)

// SetOutputSink redirects the output of Printf to w. Any output buffered
// before a sink was available is flushed to w.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		_, _ = io.Copy(w, &earlyBuffer)
	}
}

// Printf writes formatted output to the active output sink. It supports the
// following verbs, each optionally preceded by a decimal width:
//
//	%s strings and byte slices, left-padded with spaces
//	%d integers in base 10, left-padded with spaces
//	%x integers in base 16, left-padded with zeroes
//	%t booleans
//	%% a literal percent sign
//
// Printf never calls fmt or reflect so it can be used from code paths that
// run before the Go allocator is usable.
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Fprintf behaves like Printf but writes to w. A nil w selects the early
// ring buffer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		argIndex int
		width    int
	)

	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			writeByte(w, format[i])
			continue
		}

		width = 0
		for i++; i < len(format) && format[i] >= '0' && format[i] <= '9'; i++ {
			width = width*10 + int(format[i]-'0')
		}

		if i == len(format) {
			write(w, errNoVerb)
			break
		}

		verb := format[i]
		switch verb {
		case '%':
			writeByte(w, '%')
			continue
		case 's', 'd', 'x', 't':
		default:
			write(w, errNoVerb)
			continue
		}

		if argIndex >= len(args) {
			write(w, errMissingArg)
			continue
		}

		arg := args[argIndex]
		argIndex++

		switch verb {
		case 's':
			fmtString(w, arg, width)
		case 'd':
			fmtInt(w, arg, 10, width)
		case 'x':
			fmtInt(w, arg, 16, width)
		case 't':
			fmtBool(w, arg)
		}
	}

	for ; argIndex < len(args); argIndex++ {
		write(w, errExtraArg)
	}
}

func fmtBool(w io.Writer, v interface{}) {
	b, ok := v.(bool)
	switch {
	case !ok:
		write(w, errWrongArgType)
	case b:
		write(w, trueValue)
	default:
		write(w, falseValue)
	}
}

func fmtString(w io.Writer, v interface{}, width int) {
	switch s := v.(type) {
	case string:
		pad(w, ' ', width-len(s))
		for i := 0; i < len(s); i++ {
			writeByte(w, s[i])
		}
	case []byte:
		pad(w, ' ', width-len(s))
		write(w, s)
	default:
		write(w, errWrongArgType)
	}
}

// fmtInt formats any built-in integer type in base 10 or 16.
func fmtInt(w io.Writer, v interface{}, base uint64, width int) {
	var (
		uval     uint64
		negative bool
	)

	switch n := v.(type) {
	case uint8:
		uval = uint64(n)
	case uint16:
		uval = uint64(n)
	case uint32:
		uval = uint64(n)
	case uint64:
		uval = n
	case uint:
		uval = uint64(n)
	case uintptr:
		uval = uint64(n)
	case int8:
		uval, negative = abs(int64(n))
	case int16:
		uval, negative = abs(int64(n))
	case int32:
		uval, negative = abs(int64(n))
	case int64:
		uval, negative = abs(n)
	case int:
		uval, negative = abs(int64(n))
	default:
		write(w, errWrongArgType)
		return
	}

	if width > numBufSize-1 {
		width = numBufSize - 1
	}

	// Digits are rendered right to left starting from the end of numBuf.
	pos := numBufSize
	for {
		digit := byte(uval % base)
		if digit < 10 {
			digit += '0'
		} else {
			digit += 'a' - 10
		}
		pos--
		numBuf[pos] = digit

		if uval /= base; uval == 0 {
			break
		}
	}

	padCh := byte(' ')
	if base == 16 {
		padCh = '0'
	}

	// The sign counts towards the width. Space-padded values carry it right
	// before the first digit; zero-padded ones in front of the padding.
	if negative && padCh == ' ' {
		pos--
		numBuf[pos] = '-'
	}

	signLen := 0
	if negative && padCh == '0' {
		signLen = 1
	}
	for numBufSize-pos+signLen < width {
		pos--
		numBuf[pos] = padCh
	}

	if signLen != 0 {
		pos--
		numBuf[pos] = '-'
	}

	write(w, numBuf[pos:])
}

func abs(v int64) (uint64, bool) {
	if v < 0 {
		return uint64(-v), true
	}
	return uint64(v), false
}

func pad(w io.Writer, ch byte, count int) {
	for ; count > 0; count-- {
		writeByte(w, ch)
	}
}

func writeByte(w io.Writer, b byte) {
	charBuf[0] = b
	write(w, charBuf[:])
}

func write(w io.Writer, p []byte) {
	if w == nil {
		_, _ = earlyBuffer.Write(p)
		return
	}
	_, _ = w.Write(p)
}
