package advance

import (
	"context"

	"github.com/notargets/reactamr/grid"
	"github.com/notargets/reactamr/sources"
)

// molScheme is the method of lines update: an explicit transport step with
// the old-time sources, optionally corrected with a second Heun stage, then
// the chemistry over the whole step with no external tendency.
type molScheme struct {
	stages int
}

func (mol *molScheme) name() string { return "MOL" }

func (mol *molScheme) advance(ctx context.Context, lv *Level, st *stepState) (err error) {
	var (
		t, dt = st.time, st.dt
		ncomp = lv.Layout.NumState()
		sb    *grid.MultiFab
		res   *TransportResult
	)
	st.srcOld = grid.NewMultiFab(lv.BA, ncomp, 0, lv.Geom.Dim)
	if sb, err = lv.filled(lv.Old, t); err != nil {
		return
	}
	if err = lv.sumSources(ctx, sources.OldTime, sb, t, dt, st.srcOld); err != nil {
		return
	}
	if res, err = lv.evaluate(ctx, sb); err != nil {
		return
	}
	uStar := lv.New
	uStar.Copy(lv.Old, 0, 0, ncomp, 0)
	uStar.Saxpy(dt, res.Tendency, 0, 0, ncomp, 0)
	uStar.Saxpy(dt, st.srcOld, 0, 0, ncomp, 0)
	if err = lv.Mask.Apply(uStar); err != nil {
		return
	}
	if mol.stages == 1 {
		st.records = append(st.records, fluxRecord{res: res, weight: dt})
		return lv.react(ctx, lv.New, nil, dt, t)
	}

	var (
		res2   *TransportResult
		srcNew = grid.NewMultiFab(lv.BA, ncomp, 0, lv.Geom.Dim)
	)
	if err = lv.fill(uStar, t+dt); err != nil {
		return
	}
	if err = lv.sumSources(ctx, sources.NewTime, uStar, t+dt, dt, srcNew); err != nil {
		return
	}
	if res2, err = lv.evaluate(ctx, uStar); err != nil {
		return
	}
	// U_new = (U_old + U*)/2 + dt/2 (A(U*) + S_new)
	lv.New.LinComb(0.5, lv.Old, 0.5, uStar)
	lv.New.Saxpy(0.5*dt, res2.Tendency, 0, 0, ncomp, 0)
	lv.New.Saxpy(0.5*dt, srcNew, 0, 0, ncomp, 0)
	if err = lv.Mask.Apply(lv.New); err != nil {
		return
	}
	st.records = append(st.records,
		fluxRecord{res: res, weight: 0.5 * dt},
		fluxRecord{res: res2, weight: 0.5 * dt})
	return lv.react(ctx, lv.New, nil, dt, t)
}
