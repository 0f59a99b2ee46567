package bilibili

import (
	"bytes"
	"strconv"
)

// FlexInt decodes integers the upstream sends either as numbers or as
// quoted strings. Null and the empty string decode to zero.
type FlexInt int64

func (n *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return err
	}
	*n = FlexInt(v)
	return nil
}
