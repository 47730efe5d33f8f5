package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Kind identifies the document family a reference number is issued for.
type Kind string

const (
	KindBill              Kind = "BILL"
	KindBillInvoice       Kind = "BILL_INVOICE"
	KindCommissionInvoice Kind = "COMMISSION_INVOICE"
	KindActivationRequest Kind = "ACTIVATION_REQUEST"
	KindOfferLetter       Kind = "OFFER_LETTER"
)

// Period decides how often a kind's sequence restarts.
type Period int

const (
	PeriodMonthly Period = iota
	PeriodYearly
)

// Scheme is the fixed prefix and period of a kind.
type Scheme struct {
	Prefix string
	Period Period
}

var schemes = map[Kind]Scheme{
	KindBill:              {Prefix: "BILL", Period: PeriodMonthly},
	KindBillInvoice:       {Prefix: "BILL-INV", Period: PeriodMonthly},
	KindCommissionInvoice: {Prefix: "COMM-INV", Period: PeriodMonthly},
	KindActivationRequest: {Prefix: "ACT-REQ", Period: PeriodYearly},
	KindOfferLetter:       {Prefix: "OFFER", Period: PeriodYearly},
}

func (k Kind) Scheme() (Scheme, error) {
	s, ok := schemes[k]
	if !ok {
		return Scheme{}, ErrUnknownKind
	}
	return s, nil
}

// PeriodKey renders at as YYYYMM or YYYY in UTC.
func (s Scheme) PeriodKey(at time.Time) string {
	at = at.UTC()
	if s.Period == PeriodYearly {
		return at.Format("2006")
	}
	return at.Format("200601")
}

// Format renders PREFIX-PERIODKEY-NNNNNN.
func Format(prefix, periodKey string, sequence int64) string {
	return fmt.Sprintf("%s-%s-%06d", prefix, periodKey, sequence)
}

// ParseSequence extracts the sequence from a value issued under prefix and
// periodKey. Fallback values parse to the sequence they were derived from.
func ParseSequence(value, prefix, periodKey string) (int64, bool) {
	rest, ok := strings.CutPrefix(value, prefix+"-"+periodKey+"-")
	if !ok {
		return 0, false
	}
	if i := strings.IndexByte(rest, '-'); i >= 0 {
		rest = rest[:i]
	}
	seq, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || seq <= 0 {
		return 0, false
	}
	return seq, true
}

// ReferenceNumber is one issued value. The table is an append-only log;
// the unique index on Value is what guarantees no value is issued twice.
type ReferenceNumber struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Value     string       `gorm:"type:text;not null;uniqueIndex:ux_reference_numbers_value"`
	Kind      Kind         `gorm:"type:text;not null;index:ix_reference_numbers_kind_period,priority:1"`
	PeriodKey string       `gorm:"type:text;not null;index:ix_reference_numbers_kind_period,priority:2"`
	Sequence  int64        `gorm:"not null"`
	Fallback  bool         `gorm:"not null;default:false"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ReferenceNumber) TableName() string { return "reference_numbers" }
