package efi

import "time"

// Time is the firmware calendar time record. It occupies 16 bytes on the
// wire with the layout Year(2) Month Day Hour Minute Second Pad1
// Nanosecond(4) TimeZone(2) Daylight Pad2.
type Time struct {
	Year       uint16
	Month      uint8
	Day        uint8
	Hour       uint8
	Minute     uint8
	Second     uint8
	Nanosecond uint32
	TimeZone   int16
	Daylight   uint8
}

const timeSize = 16

// Unspecified marks a time record with no timezone information.
const unspecifiedTimeZone int16 = 0x07FF

// NewTime converts a wall-clock time to the firmware record. The zero
// time.Time maps to a zeroed record.
func NewTime(t time.Time) Time {
	if t.IsZero() {
		return Time{}
	}
	t = t.UTC()
	return Time{
		Year:       uint16(t.Year()),
		Month:      uint8(t.Month()),
		Day:        uint8(t.Day()),
		Hour:       uint8(t.Hour()),
		Minute:     uint8(t.Minute()),
		Second:     uint8(t.Second()),
		Nanosecond: uint32(t.Nanosecond()),
	}
}

// Std converts the record back to a wall-clock time. A zeroed record maps
// to the zero time.Time.
func (t Time) Std() time.Time {
	if t == (Time{}) {
		return time.Time{}
	}
	return time.Date(int(t.Year), time.Month(t.Month), int(t.Day),
		int(t.Hour), int(t.Minute), int(t.Second), int(t.Nanosecond), time.UTC)
}

func (t Time) encode(p []byte) {
	le.PutUint16(p[0:], t.Year)
	p[2] = t.Month
	p[3] = t.Day
	p[4] = t.Hour
	p[5] = t.Minute
	p[6] = t.Second
	p[7] = 0
	le.PutUint32(p[8:], t.Nanosecond)
	le.PutUint16(p[12:], uint16(t.TimeZone))
	p[14] = t.Daylight
	p[15] = 0
}

func decodeTime(p []byte) Time {
	return Time{
		Year:       le.Uint16(p[0:]),
		Month:      p[2],
		Day:        p[3],
		Hour:       p[4],
		Minute:     p[5],
		Second:     p[6],
		Nanosecond: le.Uint32(p[8:]),
		TimeZone:   int16(le.Uint16(p[12:])),
		Daylight:   p[14],
	}
}
