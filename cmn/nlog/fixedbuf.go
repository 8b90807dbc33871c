/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

// fixed is a reusable growable line buffer; kept distinct from the
// public writer so reset/eol can stay unexported and allocation-free
// on the hot logging path.
type fixed struct {
	buf  []byte
	woff int
}

func (fb *fixed) reset() { fb.woff = 0 }

func (fb *fixed) writeString(s string) {
	fb.grow(len(s))
	fb.woff += copy(fb.buf[fb.woff:cap(fb.buf)], s)
}

func (fb *fixed) writeByte(c byte) {
	fb.grow(1)
	fb.buf[fb.woff] = c
	fb.woff++
}

func (fb *fixed) eol() {
	if fb.woff == 0 || fb.buf[fb.woff-1] != '\n' {
		fb.writeByte('\n')
	}
}

func (fb *fixed) grow(n int) {
	if fb.woff+n <= cap(fb.buf) {
		fb.buf = fb.buf[:cap(fb.buf)]
		return
	}
	nbuf := make([]byte, fb.woff, 2*(cap(fb.buf)+n))
	copy(nbuf, fb.buf[:fb.woff])
	fb.buf = nbuf[:cap(nbuf)]
}
