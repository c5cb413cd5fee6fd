package sii

import (
	"fmt"
	"time"
)

// Date es una fecha civil sin zona horaria, como las emite el SII ("2019-04-01").
// El valor cero representa "sin fecha".
type Date struct {
	t time.Time
}

// NewDate construye una fecha civil; los valores fuera de rango se normalizan como en time.Date.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate exige el formato exacto AAAA-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateFormat, s)
	if err != nil {
		return Date{}, fmt.Errorf("sii: fecha inválida %q (formato %s)", s, DateFormat)
	}
	return Date{t: t}, nil
}

func (d Date) IsZero() bool           { return d.t.IsZero() }
func (d Date) Year() int              { return d.t.Year() }
func (d Date) Month() time.Month      { return d.t.Month() }
func (d Date) Day() int               { return d.t.Day() }
func (d Date) Before(other Date) bool { return d.t.Before(other.t) }
func (d Date) Equal(other Date) bool  { return d.t.Equal(other.t) }

// Time devuelve la medianoche UTC de la fecha.
func (d Date) Time() time.Time { return d.t }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(DateFormat)
}

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// NaiveDateTime es un timestamp de reloj local sin offset ("2019-04-01T01:36:40").
// Internamente se guarda en UTC con los mismos campos de reloj; la zona se aplica con In.
type NaiveDateTime struct {
	t time.Time
}

func NewNaiveDateTime(year int, month time.Month, day, hour, min, sec int) NaiveDateTime {
	return NaiveDateTime{t: time.Date(year, month, day, hour, min, sec, 0, time.UTC)}
}

// ParseNaiveDateTime exige AAAA-MM-DDTHH:MM:SS; un sufijo de zona ("Z", "-03:00") es un error.
func ParseNaiveDateTime(s string) (NaiveDateTime, error) {
	t, err := time.Parse(TimestampFormat, s)
	if err != nil {
		return NaiveDateTime{}, fmt.Errorf("sii: timestamp inválido %q (formato %s)", s, TimestampFormat)
	}
	return NaiveDateTime{t: t}, nil
}

func (n NaiveDateTime) IsZero() bool { return n.t.IsZero() }

// Wall devuelve los campos de reloj en UTC, sin interpretar zona.
func (n NaiveDateTime) Wall() time.Time { return n.t }

// In interpreta el reloj en la zona indicada (America/Santiago para los DTE).
func (n NaiveDateTime) In(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(n.t.Year(), n.t.Month(), n.t.Day(), n.t.Hour(), n.t.Minute(), n.t.Second(), 0, loc)
}

func (n NaiveDateTime) Date() Date {
	return NewDate(n.t.Year(), n.t.Month(), n.t.Day())
}

func (n NaiveDateTime) String() string {
	if n.IsZero() {
		return ""
	}
	return n.t.Format(TimestampFormat)
}

func (n NaiveDateTime) MarshalText() ([]byte, error) { return []byte(n.String()), nil }

func (n *NaiveDateTime) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*n = NaiveDateTime{}
		return nil
	}
	parsed, err := ParseNaiveDateTime(string(b))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}
