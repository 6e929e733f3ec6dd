package shift

import (
	"fmt"
	"math/rand/v2"
)

// NewSerialNumber generates a waybill series and number in the form
// "DDDDDD - DDDDDDD". Serial numbers are purely random, scoped to a single
// fill and carry no uniqueness guarantee across fills.
func NewSerialNumber() string {
	series := 100000 + rand.IntN(900000)
	number := 1000000 + rand.IntN(9000000)
	return fmt.Sprintf("%06d - %07d", series, number)
}
