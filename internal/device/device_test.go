package device

import "testing"

func TestSelectPriority(t *testing.T) {
	cases := []struct {
		caps Capabilities
		want Kind
	}{
		{Capabilities{CUDA: true, MPS: true}, CUDA},
		{Capabilities{CUDA: true}, CUDA},
		{Capabilities{MPS: true}, MPS},
		{Capabilities{}, CPU},
	}
	for _, c := range cases {
		got, err := Select(c.caps, "auto")
		if err != nil || got != c.want {
			t.Fatalf("Select(%+v) = %q, %v; want %q", c.caps, got, err, c.want)
		}
	}
}

func TestSelectOverride(t *testing.T) {
	got, err := Select(Capabilities{CUDA: true}, "CPU")
	if err != nil || got != CPU {
		t.Fatalf("override: got %q err=%v", got, err)
	}
	if _, err := Select(Capabilities{}, "tpu"); err == nil {
		t.Fatalf("expected error for unknown override")
	}
	got, err = Select(Capabilities{MPS: true}, "")
	if err != nil || got != MPS {
		t.Fatalf("empty override should probe: got %q err=%v", got, err)
	}
}

func TestDetect(t *testing.T) {
	const amd = "Advanced Micro Devices, Inc. [AMD/ATI]"
	cases := []struct {
		name  string
		cards []gpu
		cuda  bool
	}{
		{"nvidia", []gpu{{"NVIDIA Corporation", "GA102 [GeForce RTX 3090]"}}, true},
		{"nvidia unknown product", []gpu{{"NVIDIA Corporation", ""}}, true},
		{"amd discrete", []gpu{{amd, "Navi 31 [Radeon RX 7900 XT/7900 XTX]"}}, true},
		{"amd instinct", []gpu{{amd, "Aldebaran/MI200 [Instinct MI210]"}}, true},
		{"amd apu", []gpu{{amd, "Cezanne [Radeon Vega Series / Radeon Vega Mobile Series]"}}, false},
		{"amd apu 680m", []gpu{{amd, "Rembrandt [Radeon 680M]"}}, false},
		{"amd unknown product", []gpu{{amd, ""}}, false},
		{"apu plus nvidia", []gpu{{amd, "Renoir"}, {"NVIDIA Corporation", "TU117M"}}, true},
		{"intel", []gpu{{"Intel Corporation", "Alder Lake-P GT2 [Iris Xe Graphics]"}}, false},
	}
	for _, tc := range cases {
		if c := detect(tc.cards, "linux", "amd64", false); c.CUDA != tc.cuda || c.MPS {
			t.Fatalf("%s: %+v", tc.name, c)
		}
	}
	if c := detect(nil, "darwin", "arm64", true); c.CUDA || !c.MPS {
		t.Fatalf("apple silicon: %+v", c)
	}
	if c := detect(nil, "linux", "arm64", true); c.MPS {
		t.Fatalf("mps requires macOS: %+v", c)
	}
}

func TestMerge(t *testing.T) {
	a := Capabilities{CUDA: true, GPUName: "local"}
	b := Capabilities{MPS: true, GPUName: "remote", CPUName: "cpu"}
	m := a.Merge(b)
	if !m.CUDA || !m.MPS || m.GPUName != "local" || m.CPUName != "cpu" {
		t.Fatalf("merge: %+v", m)
	}
}

func TestProbeIsStable(t *testing.T) {
	a, b := Probe(), Probe()
	if a != b {
		t.Fatalf("probe changed between calls: %+v vs %+v", a, b)
	}
	if _, err := Select(a, "auto"); err != nil {
		t.Fatalf("select: %v", err)
	}
}
