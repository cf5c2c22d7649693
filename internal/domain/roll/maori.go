package roll

// MaoriCounts are the two parallel counters of one Māori table cell.
type MaoriCounts struct {
	// Total counts every qualifying student at the level and year.
	Total int
	// Maori counts the subset with the Māori ethnicity code.
	Maori int
}

// MaoriTable holds Māori language learning counts by bucket and year level.
// Year levels 0-15 are zero-filled for every bucket.
type MaoriTable struct {
	Cells map[MaoriLevel]map[int]*MaoriCounts
}

// NewMaoriTable returns a zero-filled table.
func NewMaoriTable() *MaoriTable {
	t := &MaoriTable{Cells: make(map[MaoriLevel]map[int]*MaoriCounts, len(MaoriLevels()))}
	for _, level := range MaoriLevels() {
		row := make(map[int]*MaoriCounts, MaxYearLevel+1)
		for yl := 0; yl <= MaxYearLevel; yl++ {
			row[yl] = &MaoriCounts{}
		}
		t.Cells[level] = row
	}
	return t
}

// Get returns the counters for a bucket and year level.
func (t *MaoriTable) Get(level MaoriLevel, yearLevel int) MaoriCounts {
	row, ok := t.Cells[level]
	if !ok {
		return MaoriCounts{}
	}
	c, ok := row[yearLevel]
	if !ok {
		return MaoriCounts{}
	}
	return *c
}

// GrandTotal sums the Total counter over the whole table.
func (t *MaoriTable) GrandTotal() int {
	n := 0
	for _, row := range t.Cells {
		for _, c := range row {
			n += c.Total
		}
	}
	return n
}

// Maori builds the Māori language learning table for the period.
func (a *Aggregator) Maori(period Period, students []Student) (*MaoriTable, error) {
	collectionDate, err := period.CollectionDate()
	if err != nil {
		return nil, err
	}

	table := NewMaoriTable()
	for i, s := range students {
		if err := checkFilterFields(i, s); err != nil {
			return nil, err
		}
		if !IsMaoriEligible(a.rules, collectionDate, s) {
			continue
		}

		level, known := a.rules.MaoriLevelCodes[s.MaoriLanguageLevel]
		if !known {
			return nil, newUnknownMaoriLevel(i, s.MaoriLanguageLevel)
		}
		if level == 0 {
			continue
		}
		if err := checkAxisFields(i, s); err != nil {
			return nil, err
		}

		cell := table.Cells[level][s.FundingYearLevel]
		cell.Total++
		if s.HasEthnicity(a.rules.MaoriEthnicityCode) {
			cell.Maori++
		}
	}
	return table, nil
}
