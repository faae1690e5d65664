package prayer

import (
	"fmt"

	"github.com/mnadev/adhango/pkg/calc"
)

// Method names a set of astronomical conventions used to derive prayer times.
type Method string

const (
	Karachi           Method = "karachi"
	Singapore         Method = "singapore"
	MuslimWorldLeague Method = "muslim_world_league"
	UmmAlQura         Method = "umm_al_qura"
	Egyptian          Method = "egyptian"
)

// Methods lists every supported method.
var Methods = []Method{Karachi, Singapore, MuslimWorldLeague, UmmAlQura, Egyptian}

// Madhab selects the shadow factor used for the Asr time.
type Madhab string

const (
	Shafi  Madhab = "shafi"
	Hanafi Madhab = "hanafi"
)

// calculation maps m onto the adhan method whose angles, Dhuhr adjustment,
// Isha interval and rounding it carries.
func (m Method) calculation() (calc.CalculationMethod, error) {
	switch m {
	case Karachi:
		return calc.KARACHI, nil
	case Singapore:
		return calc.SINGAPORE, nil
	case MuslimWorldLeague:
		return calc.MUSLIM_WORLD_LEAGUE, nil
	case UmmAlQura:
		return calc.UMM_AL_QURA, nil
	case Egyptian:
		return calc.EGYPTIAN, nil
	default:
		var none calc.CalculationMethod
		return none, fmt.Errorf("unknown calculation method %q", string(m))
	}
}

// SelectMethod maps coordinates to a method using ordered, first-match
// geographic bands. Bands 1 and 2 overlap; band 1 wins there.
func SelectMethod(lat, lon float64) Method {
	switch {
	case between(lat, 16, 28) && between(lon, 92, 101):
		return Karachi
	case between(lat, 5, 20) && between(lon, 70, 130):
		return Singapore
	case lat > 45:
		return MuslimWorldLeague
	case between(lat, 20, 30) && between(lon, 30, 50):
		return UmmAlQura
	default:
		return Egyptian
	}
}

func between(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}
