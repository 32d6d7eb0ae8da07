package model

import (
	"fmt"
	"time"
)

// Bill types recognized by the pipeline. Anything else in a source document
// is rejected by the parser.
const (
	TypeHB  = "HB"
	TypeSB  = "SB"
	TypeHJR = "HJR"
	TypeSJR = "SJR"
	TypeHCR = "HCR"
	TypeSCR = "SCR"
)

// BillTypes lists all recognized types in default processing order.
var BillTypes = []string{TypeHB, TypeSB, TypeHJR, TypeSJR, TypeHCR, TypeSCR}

// ValidBillType reports whether t is one of the six recognized type codes.
func ValidBillType(t string) bool {
	switch t {
	case TypeHB, TypeSB, TypeHJR, TypeSJR, TypeHCR, TypeSCR:
		return true
	}
	return false
}

// BillID derives the natural key for a bill, e.g. "HB 1". The type code is
// part of the key, so numbers never collide across types.
func BillID(billType string, number int) string {
	return fmt.Sprintf("%s %d", billType, number)
}

// Bill is the persisted bill record, keyed by BillID.
type Bill struct {
	ID              int        `json:"-"`
	BillID          string     `json:"bill_id"`
	BillType        string     `json:"bill_type"`
	BillNumber      int        `json:"bill_number"`
	Description     string     `json:"description"`
	Content         *string    `json:"content,omitempty"`
	Authors         []string   `json:"authors"`
	Coauthors       []string   `json:"coauthors"`
	Sponsors        []string   `json:"sponsors"`
	Cosponsors      []string   `json:"cosponsors"`
	Subjects        []string   `json:"subjects"`
	Status          string     `json:"status"`
	LastAction      string     `json:"last_action"`
	LastActionDate  *time.Time `json:"last_action_date,omitempty"`
	LastUpdateFTP   *time.Time `json:"last_update_ftp,omitempty"`
	CommitteeName   *string    `json:"committee_name,omitempty"`
	CommitteeStatus *string    `json:"committee_status,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Action is one dated entry from a bill's action history, in document order
// (oldest first, the way the source records them).
type Action struct {
	Date        string `json:"date"`
	Description string `json:"description"`
}

// Committee is a committee assignment within one chamber.
type Committee struct {
	Chamber string `json:"chamber"`
	Name    string `json:"name"`
	Status  string `json:"status"`
}

// ParsedBill is the in-memory result of parsing one bill-history document.
// It is consumed immediately by the sync loop, which may fetch the bill text
// before converting it into a Bill.
type ParsedBill struct {
	BillType       string
	BillNumber     int
	Description    string
	Authors        []string
	Coauthors      []string
	Sponsors       []string
	Cosponsors     []string
	Subjects       []string
	Actions        []Action
	Committees     []Committee
	Status         string
	LastAction     string
	LastActionDate *time.Time
	LastUpdate     *time.Time
	TextURL        string
}

// BillID returns the natural key for the parsed bill.
func (p *ParsedBill) BillID() string {
	return BillID(p.BillType, p.BillNumber)
}

// OriginCommittee picks the committee of the bill's origin chamber, falling
// back to whichever chamber has one.
func (p *ParsedBill) OriginCommittee() *Committee {
	if len(p.Committees) == 0 {
		return nil
	}
	origin := "House"
	if len(p.BillType) > 0 && p.BillType[0] == 'S' {
		origin = "Senate"
	}
	for i := range p.Committees {
		if p.Committees[i].Chamber == origin {
			return &p.Committees[i]
		}
	}
	return &p.Committees[0]
}
