package codec

import (
	"bytes"
	"github.com/gostonefire/filedbm/dbmerrors"
	"github.com/gostonefire/filedbm/internal/conf"
	"github.com/gostonefire/filedbm/internal/model"
	"strconv"
)

// EncodeFixed - Converts a non-negative integer to exactly width zero padded ascii digits.
// A value that needs more digits than width returns a dbmerrors.FormatError, it is never truncated.
func EncodeFixed(value, width int64) (buf []byte, err error) {
	if value < 0 {
		err = dbmerrors.NewFormatError("negative value %d can not be encoded", value)
		return
	}

	digits := strconv.FormatInt(value, 10)
	if int64(len(digits)) > width {
		err = dbmerrors.NewFormatError("value %d does not fit in a field of width %d", value, width)
		return
	}

	buf = make([]byte, width)
	pad := width - int64(len(digits))
	for i := int64(0); i < pad; i++ {
		buf[i] = '0'
	}
	_ = copy(buf[pad:], digits)

	return
}

// DecodeFixed - Parses a fixed width ascii integer. Leading zeros and leading spaces are both accepted so that
// files written with space padded fields remain readable.
func DecodeFixed(buf []byte) (value int64, err error) {
	digits := bytes.TrimLeft(buf, " ")
	if len(digits) == 0 {
		err = dbmerrors.NewFormatError("empty fixed width field %q", buf)
		return
	}

	for _, c := range digits {
		if c < '0' || c > '9' {
			err = dbmerrors.NewFormatError("invalid fixed width field %q", buf)
			return
		}
	}

	value, err = strconv.ParseInt(string(digits), 10, 64)
	if err != nil {
		err = dbmerrors.NewFormatError("invalid fixed width field %q: %s", buf, err)
	}

	return
}

// EncodePointer - Converts an index file offset to a pointer field of the layout's width
func EncodePointer(layout model.Layout, ptr model.IdxOffset) (buf []byte, err error) {
	return EncodeFixed(int64(ptr), layout.PointerSize)
}

// DecodePointer - Converts a pointer field to an index file offset
func DecodePointer(layout model.Layout, buf []byte) (ptr model.IdxOffset, err error) {
	if int64(len(buf)) != layout.PointerSize {
		err = dbmerrors.NewFormatError("pointer field has length %d, expected %d", len(buf), layout.PointerSize)
		return
	}

	v, err := DecodeFixed(buf)
	if err != nil {
		return
	}
	ptr = model.IdxOffset(v)

	return
}

// EncodePayload - Builds the "<key>:<data_offset>:<data_size>\n" payload of an index record
func EncodePayload(key string, datOffset model.DatOffset, datSize int64) (payload []byte) {
	payload = make([]byte, 0, len(key)+42)
	payload = append(payload, key...)
	payload = append(payload, conf.Separator)
	payload = strconv.AppendInt(payload, int64(datOffset), 10)
	payload = append(payload, conf.Separator)
	payload = strconv.AppendInt(payload, datSize, 10)
	payload = append(payload, conf.Newline)

	return
}

// EncodeRecord - Converts an index record to its on-disk representation: next pointer, payload length and
// payload.
//   - layout gives the field widths
//   - record must have Next, Key, DatOffset and DatSize set
//
// It returns:
//   - buf is the complete record ready to be written
//   - err is of type dbmerrors.FormatError if any field overflows its width
func EncodeRecord(layout model.Layout, record model.IndexRecord) (buf []byte, err error) {
	payload := EncodePayload(record.Key, record.DatOffset, record.DatSize)
	idxLen := int64(len(payload))
	if idxLen < conf.IdxLenMin || idxLen > layout.MaxIdxLen() {
		err = dbmerrors.NewFormatError("index record length %d outside permitted range %d-%d", idxLen, conf.IdxLenMin, layout.MaxIdxLen())
		return
	}

	ptr, err := EncodePointer(layout, record.Next)
	if err != nil {
		return
	}
	length, err := EncodeFixed(idxLen, layout.IdxLenSize)
	if err != nil {
		return
	}

	buf = make([]byte, 0, layout.RecordHeaderLength()+idxLen)
	buf = append(buf, ptr...)
	buf = append(buf, length...)
	buf = append(buf, payload...)

	return
}

// DecodeRecordHeader - Converts the fixed width part of an index record to next pointer and payload length
func DecodeRecordHeader(layout model.Layout, buf []byte) (next model.IdxOffset, length int64, err error) {
	if int64(len(buf)) != layout.RecordHeaderLength() {
		err = dbmerrors.NewFormatError("record header has length %d, expected %d", len(buf), layout.RecordHeaderLength())
		return
	}

	next, err = DecodePointer(layout, buf[:layout.PointerSize])
	if err != nil {
		return
	}

	length, err = DecodeFixed(buf[layout.PointerSize:])
	if err != nil {
		return
	}
	if length < conf.IdxLenMin || length > layout.MaxIdxLen() {
		err = dbmerrors.NewFormatError("invalid index record length %d", length)
	}

	return
}

// DecodePayload - Splits a payload into key, data offset and data size. The payload must end with a newline
// and contain exactly three fields.
func DecodePayload(buf []byte) (key string, datOffset model.DatOffset, datSize int64, err error) {
	if len(buf) == 0 || buf[len(buf)-1] != conf.Newline {
		err = dbmerrors.NewFormatError("index record payload %q not terminated by newline", buf)
		return
	}

	parts := bytes.Split(buf[:len(buf)-1], []byte{conf.Separator})
	if len(parts) != 3 {
		err = dbmerrors.NewFormatError("index record payload %q has %d fields, expected 3", buf, len(parts))
		return
	}
	if len(parts[0]) == 0 {
		err = dbmerrors.NewFormatError("index record payload %q has an empty key", buf)
		return
	}

	off, err := parseDecimal(parts[1])
	if err != nil {
		return
	}
	datSize, err = parseDecimal(parts[2])
	if err != nil {
		return
	}

	key = string(parts[0])
	datOffset = model.DatOffset(off)

	return
}

// parseDecimal - Parses a non-negative variable width decimal from a payload
func parseDecimal(buf []byte) (value int64, err error) {
	value, err = strconv.ParseInt(string(buf), 10, 64)
	if err != nil || value < 0 {
		value = 0
		err = dbmerrors.NewFormatError("invalid number %q in index record payload", buf)
	}

	return
}
