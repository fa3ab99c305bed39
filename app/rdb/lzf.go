package rdb

import "errors"

var errLZF = errors.New("corrupt lzf data")

// lzfDecompress expands an LZF block into exactly size bytes.
func lzfDecompress(in []byte, size int) ([]byte, error) {
	out := make([]byte, 0, size)

	for i := 0; i < len(in); {
		ctrl := int(in[i])
		i++

		if ctrl < 32 {
			n := ctrl + 1
			if i+n > len(in) {
				return nil, errLZF
			}
			out = append(out, in[i:i+n]...)
			i += n
			continue
		}

		length := ctrl >> 5
		if length == 7 {
			if i >= len(in) {
				return nil, errLZF
			}
			length += int(in[i])
			i++
		}

		if i >= len(in) {
			return nil, errLZF
		}

		ref := len(out) - (ctrl&0x1f)<<8 - int(in[i]) - 1
		i++

		if ref < 0 {
			return nil, errLZF
		}

		// Back references may overlap the bytes they produce.
		for j := 0; j < length+2; j++ {
			out = append(out, out[ref+j])
		}
	}

	if len(out) != size {
		return nil, errLZF
	}

	return out, nil
}
