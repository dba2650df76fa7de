package paper

// Summary aggregates paper trade results.
type Summary struct {
	Trades         int     `json:"trades"`
	Wins           int     `json:"wins"` // target hit
	Losses         int     `json:"losses"`
	Expired        int     `json:"expired"`
	Open           int     `json:"open"`
	WinRate        float64 `json:"win_rate"` // wins / (wins + losses)
	TotalReturnPct float64 `json:"total_return_pct"`
	AvgReturnPct   float64 `json:"avg_return_pct"`
	BestPct        float64 `json:"best_pct"`
	WorstPct       float64 `json:"worst_pct"`
}

// Summarize computes a Summary. Open trades count towards returns at their
// mark price.
func Summarize(trades []Trade) Summary {
	var s Summary
	s.Trades = len(trades)
	for i, t := range trades {
		switch t.Outcome {
		case OutcomeTarget:
			s.Wins++
		case OutcomeStop:
			s.Losses++
		case OutcomeExpired:
			s.Expired++
		case OutcomeOpen:
			s.Open++
		}
		s.TotalReturnPct += t.ReturnPct
		if i == 0 || t.ReturnPct > s.BestPct {
			s.BestPct = t.ReturnPct
		}
		if i == 0 || t.ReturnPct < s.WorstPct {
			s.WorstPct = t.ReturnPct
		}
	}
	if s.Trades > 0 {
		s.AvgReturnPct = s.TotalReturnPct / float64(s.Trades)
	}
	if decided := s.Wins + s.Losses; decided > 0 {
		s.WinRate = float64(s.Wins) / float64(decided)
	}
	return s
}
