package core

// itoa converts an integer to a string without the fmt package, so the
// driver stays usable on targets where fmt is too heavy.
func itoa(n int) string {
	if n < 0 {
		return "-" + utoa64(uint64(-n))
	}
	return utoa64(uint64(n))
}

// utoa converts an unsigned integer to a string
func utoa(n uint32) string {
	return utoa64(uint64(n))
}

func utoa64(n uint64) string {
	if n == 0 {
		return "0"
	}

	var buf [20]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[pos:])
}

// hex32 formats n as lowercase hex without a prefix
func hex32(n uint32) string {
	const digits = "0123456789abcdef"
	if n == 0 {
		return "0"
	}
	var buf [8]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = digits[n&0xf]
		n >>= 4
	}
	return string(buf[pos:])
}
