// Package crm integrates with the pharmacy directory API used to identify
// inbound callers.
package crm

// Pharmacy is a directory record for a prospective customer.
type Pharmacy struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	City          string         `json:"city"`
	State         string         `json:"state"`
	Phone         string         `json:"phone"`
	Email         string         `json:"email"`
	Prescriptions []Prescription `json:"prescriptions"`
}

// Prescription is one drug line item with its monthly fill count.
type Prescription struct {
	Drug  string `json:"drug"`
	Count int    `json:"count"`
}

// TotalRxVolume sums the prescription counts of the record.
// A nil pharmacy has volume 0.
func (p *Pharmacy) TotalRxVolume() int {
	if p == nil {
		return 0
	}
	total := 0
	for _, rx := range p.Prescriptions {
		total += rx.Count
	}
	return total
}
