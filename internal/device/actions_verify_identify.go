package device

import "context"

// MatchResult is the outcome of a single verify/identify scan attempt
// (spec §4.1 "Verify / identify result reporting"). MatchError carries a
// retry-domain error surfaced through the report rather than aborting the
// whole action outright.
type MatchResult int

const (
	MatchSuccess MatchResult = iota
	MatchFail
	MatchError
)

func (r MatchResult) String() string {
	switch r {
	case MatchSuccess:
		return "success"
	case MatchFail:
		return "fail"
	case MatchError:
		return "error"
	default:
		return "unknown"
	}
}

// VerifyReportEntry is one verify_report call accumulated during a verify
// action.
type VerifyReportEntry struct {
	Result  MatchResult
	Scanned *Print
	Err     error
}

// VerifyResult is the terminal outcome of VerifyAsync. Match/Scanned carry
// the last report's outcome; Reports is the full accumulated history.
type VerifyResult struct {
	Match   MatchResult
	Scanned *Print
	Reports []VerifyReportEntry
	Err     error
}

type verifyState struct {
	target  *Print
	reports []VerifyReportEntry
}

// VerifyAsync compares a live scan against target.
func (d *Device) VerifyAsync(ctx context.Context, target *Print) <-chan VerifyResult {
	out := make(chan VerifyResult, 1)
	d.rx.DeferIdle(func() {
		st := &verifyState{target: target}
		d.beginAction(ActionVerify, ctx, st, func(err error) {
			res := VerifyResult{Reports: st.reports, Err: err}
			if n := len(st.reports); n > 0 {
				res.Match = st.reports[n-1].Result
				res.Scanned = st.reports[n-1].Scanned
			}
			out <- res
		}, true, func() {
			d.dispatch(ActionVerify, func() { d.driver.Verify(d) })
		})
	})
	return out
}

// VerifyTarget returns the print the in-flight verify action is comparing
// against.
func (d *Device) VerifyTarget() *Print {
	if d.action == nil || d.action.kind != ActionVerify {
		d.log.Warnf("device: VerifyTarget called outside a verify action")
		return nil
	}
	st, _ := d.action.payload.(*verifyState)
	if st == nil {
		return nil
	}
	return st.target
}

// ReportVerify accumulates one verify_report call. A retry-domain error
// during verify is reported with result=MatchError rather than aborting
// the action (spec §4.1); drivers decide separately whether to retry or
// call VerifyComplete.
func (d *Device) ReportVerify(result MatchResult, scanned *Print, err error) {
	if d.action == nil || d.action.kind != ActionVerify {
		d.log.Warnf("device: ReportVerify called outside a verify action")
		return
	}
	st, _ := d.action.payload.(*verifyState)
	if st == nil {
		return
	}
	st.reports = append(st.reports, VerifyReportEntry{Result: result, Scanned: scanned, Err: err})
}

// VerifyComplete terminates the in-flight verify action.
func (d *Device) VerifyComplete(err error) {
	st := d.action
	if st == nil || st.kind != ActionVerify {
		d.log.Warnf("device: VerifyComplete called outside a verify action")
		return
	}
	d.completeAction(st, err)
}

// IdentifyReportEntry is one identify_report call accumulated during an
// identify action.
type IdentifyReportEntry struct {
	Matched *Print
	Scanned *Print
	Err     error
}

// IdentifyResult is the terminal outcome of IdentifyAsync.
type IdentifyResult struct {
	Matched *Print
	Scanned *Print
	Reports []IdentifyReportEntry
	Err     error
}

type identifyState struct {
	gallery []*Print
	reports []IdentifyReportEntry
}

// IdentifyAsync scans a live print against gallery, looking for the first
// match. Devices whose driver doesn't implement IdentifyDriver report
// NotSupported.
func (d *Device) IdentifyAsync(ctx context.Context, gallery []*Print) <-chan IdentifyResult {
	out := make(chan IdentifyResult, 1)
	d.rx.DeferIdle(func() {
		id, ok := d.driver.(IdentifyDriver)
		if !ok {
			out <- IdentifyResult{Err: NewError(ErrNotSupported, "driver does not support identify")}
			return
		}
		st := &identifyState{gallery: gallery}
		d.beginAction(ActionIdentify, ctx, st, func(err error) {
			res := IdentifyResult{Reports: st.reports, Err: err}
			if n := len(st.reports); n > 0 {
				res.Matched = st.reports[n-1].Matched
				res.Scanned = st.reports[n-1].Scanned
			}
			out <- res
		}, true, func() {
			d.dispatch(ActionIdentify, func() { id.Identify(d) })
		})
	})
	return out
}

// IdentifyGallery returns the candidate prints the in-flight identify
// action is scanning against.
func (d *Device) IdentifyGallery() []*Print {
	if d.action == nil || d.action.kind != ActionIdentify {
		d.log.Warnf("device: IdentifyGallery called outside an identify action")
		return nil
	}
	st, _ := d.action.payload.(*identifyState)
	if st == nil {
		return nil
	}
	return st.gallery
}

// ReportIdentify accumulates one identify_report call.
func (d *Device) ReportIdentify(matched, scanned *Print, err error) {
	if d.action == nil || d.action.kind != ActionIdentify {
		d.log.Warnf("device: ReportIdentify called outside an identify action")
		return
	}
	st, _ := d.action.payload.(*identifyState)
	if st == nil {
		return
	}
	st.reports = append(st.reports, IdentifyReportEntry{Matched: matched, Scanned: scanned, Err: err})
}

// IdentifyComplete terminates the in-flight identify action.
func (d *Device) IdentifyComplete(err error) {
	st := d.action
	if st == nil || st.kind != ActionIdentify {
		d.log.Warnf("device: IdentifyComplete called outside an identify action")
		return
	}
	d.completeAction(st, err)
}
