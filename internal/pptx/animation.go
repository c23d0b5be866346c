package pptx

import (
	"encoding/xml"
	"fmt"
	"strconv"
)

// Nominal durations PowerPoint uses for the legacy spd attribute.
var transitionSpeeds = map[string]float64{
	"slow": 1.0,
	"med":  0.75,
	"fast": 0.5,
}

var presetClasses = map[string]AnimationKind{
	"entr": AnimationEntrance,
	"emph": AnimationEmphasis,
	"exit": AnimationExit,
	"path": AnimationMotion,
}

var entranceEffects = map[int]string{
	1:  "appear",
	2:  "fly",
	3:  "blinds",
	9:  "dissolve",
	10: "fade",
	16: "split",
	21: "wheel",
	22: "wipe",
	23: "zoom",
}

var emphasisEffects = map[int]string{
	6: "grow-shrink",
	8: "spin",
	9: "transparency",
}

func isSoundElement(local string) bool {
	switch local {
	case "sndAc", "stSnd", "endSnd", "snd":
		return true
	}
	return false
}

// transitionAttrs reads duration and auto-advance timing from a
// p:transition element. Unparseable values are reported as issues.
func transitionAttrs(el xml.StartElement) (AnimationHint, float64, []string) {
	hint := AnimationHint{Kind: AnimationTransition}
	var (
		advance float64
		issues  []string
	)
	if spd := attrValue(el, "spd"); spd != "" {
		if secs, ok := transitionSpeeds[spd]; ok {
			hint.DurationSeconds = secs
		} else {
			issues = append(issues, fmt.Sprintf("unknown transition speed %q", spd))
		}
	}
	if dur := attrValue(el, "dur"); dur != "" {
		if secs, err := millisToSeconds(dur); err == nil {
			hint.DurationSeconds = secs
		} else {
			issues = append(issues, fmt.Sprintf("transition duration %q: %v", dur, err))
		}
	}
	if adv := attrValue(el, "advTm"); adv != "" {
		if secs, err := millisToSeconds(adv); err == nil {
			advance = secs
		} else {
			issues = append(issues, fmt.Sprintf("transition advance time %q: %v", adv, err))
		}
	}
	return hint, advance, issues
}

func millisToSeconds(value string) (float64, error) {
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	if ms < 0 {
		return 0, fmt.Errorf("negative duration")
	}
	return float64(ms) / 1000, nil
}

func presetEffect(kind AnimationKind, presetID string) string {
	id, err := strconv.Atoi(presetID)
	if err != nil {
		return "custom"
	}
	var (
		name string
		ok   bool
	)
	switch kind {
	case AnimationEntrance:
		name, ok = entranceEffects[id]
	case AnimationExit:
		name, ok = entranceEffects[id]
		if ok && name == "appear" {
			name = "disappear"
		}
	case AnimationEmphasis:
		name, ok = emphasisEffects[id]
	case AnimationMotion:
		return "path"
	}
	if !ok {
		return fmt.Sprintf("preset-%d", id)
	}
	return name
}

type timingNode struct {
	hint int
}

type pendingHint struct {
	delaySet bool
}

// timingParser consumes the tokens of a p:timing subtree and collects one
// hint per preset build effect (a p:cTn carrying presetClass).
type timingParser struct {
	depth   int
	nodes   []timingNode
	hints   []AnimationHint
	pending []pendingHint
	issues  []string
}

func newTimingParser() *timingParser {
	return &timingParser{depth: 1}
}

func (p *timingParser) current() int {
	for i := len(p.nodes) - 1; i >= 0; i-- {
		if p.nodes[i].hint >= 0 {
			return p.nodes[i].hint
		}
	}
	return -1
}

// handle consumes one token and reports whether the closing p:timing tag
// has been reached.
func (p *timingParser) handle(tok xml.Token) bool {
	switch t := tok.(type) {
	case xml.StartElement:
		p.depth++
		switch t.Name.Local {
		case "cTn":
			node := timingNode{hint: -1}
			if class := attrValue(t, "presetClass"); class != "" {
				if kind, ok := presetClasses[class]; ok {
					p.hints = append(p.hints, AnimationHint{
						Kind:   kind,
						Effect: presetEffect(kind, attrValue(t, "presetID")),
					})
					p.pending = append(p.pending, pendingHint{})
					node.hint = len(p.hints) - 1
				}
			}
			p.nodes = append(p.nodes, node)
			p.applyDuration(attrValue(t, "dur"))
		case "cond":
			idx := p.current()
			if idx < 0 || p.pending[idx].delaySet {
				break
			}
			delay := attrValue(t, "delay")
			if delay == "" || delay == "indefinite" {
				break
			}
			secs, err := millisToSeconds(delay)
			if err != nil {
				p.issues = append(p.issues, fmt.Sprintf("animation delay %q: %v", delay, err))
				break
			}
			p.hints[idx].DelaySeconds = secs
			p.pending[idx].delaySet = true
		case "spTgt":
			if idx := p.current(); idx >= 0 && p.hints[idx].TargetShapeID == "" {
				p.hints[idx].TargetShapeID = attrValue(t, "spid")
			}
		}
	case xml.EndElement:
		p.depth--
		if t.Name.Local == "cTn" && len(p.nodes) > 0 {
			p.nodes = p.nodes[:len(p.nodes)-1]
		}
		return p.depth == 0
	}
	return false
}

func (p *timingParser) applyDuration(dur string) {
	idx := p.current()
	if idx < 0 || dur == "" || dur == "indefinite" {
		return
	}
	secs, err := millisToSeconds(dur)
	if err != nil {
		p.issues = append(p.issues, fmt.Sprintf("animation duration %q: %v", dur, err))
		return
	}
	if secs > p.hints[idx].DurationSeconds {
		p.hints[idx].DurationSeconds = secs
	}
}
