package compute

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoKernels = `
// horizontal pass
__kernel void convolveX(read_only image2d_t src, write_only image2d_t dst,
                        __constant float *filter, const int filterSize,
                        const int width, const int height)
{
    /* body { with braces } in a comment */
}

kernel void scale(__global float* data, float factor) { }
`

type fakeImage struct{}

func (fakeImage) Format() ImageFormat { return FormatGray }
func (fakeImage) Width() int          { return 1 }
func (fakeImage) Height() int         { return 1 }
func (fakeImage) Release()            {}

type fakeBuffer struct{}

func (fakeBuffer) Len() int { return 1 }
func (fakeBuffer) Release() {}

func TestScanKernels(t *testing.T) {
	sigs, err := ScanKernels(twoKernels)
	require.NoError(t, err)
	require.Len(t, sigs, 2)

	x := sigs["convolveX"]
	require.Len(t, x.Args, 6)
	wantKinds := []ArgKind{ArgReadImage, ArgWriteImage, ArgBuffer, ArgInt, ArgInt, ArgInt}
	for i, k := range wantKinds {
		assert.Equal(t, k, x.Args[i].Kind, "arg %d (%s)", i, x.Args[i].Name)
	}
	assert.Equal(t, "filterSize", x.Args[3].Name)

	s := sigs["scale"]
	require.Len(t, s.Args, 2)
	assert.Equal(t, ArgBuffer, s.Args[0].Kind)
	assert.Equal(t, ArgFloat, s.Args[1].Kind)
}

func TestScanKernelsWithAttributes(t *testing.T) {
	src := `__kernel __attribute__((reqd_work_group_size(16,16,1))) void convolveX(
		read_only image2d_t src, write_only image2d_t dst, __constant float *filter,
		const int filterSize, const int width, const int height) { }
__kernel __attribute__((vec_type_hint(float4))) __attribute__((work_group_size_hint(8, 8, 1)))
void convolveY(read_only image2d_t src, write_only image2d_t dst) { }`

	sigs, err := ScanKernels(src)
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	assert.Len(t, sigs["convolveX"].Args, 6)
	assert.Len(t, sigs["convolveY"].Args, 2)
}

func TestScanKernelsRejectsBadSource(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"empty", ""},
		{"no kernels", "float helper(float x) { return x; }"},
		{"unclosed brace", "__kernel void k(int a) { "},
		{"stray paren", "__kernel void k(int a)) { }"},
		{"duplicate", "__kernel void k(int a) {} __kernel void k(int b) {}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ScanKernels(tt.src)
			assert.Error(t, err)
		})
	}
}

func TestSignatureCheck(t *testing.T) {
	sigs, err := ScanKernels(twoKernels)
	require.NoError(t, err)
	x := sigs["convolveX"]

	good := []any{fakeImage{}, fakeImage{}, fakeBuffer{}, int32(3), int32(4), int32(4)}
	assert.NoError(t, x.Check(good))

	assert.Error(t, x.Check(good[:5]), "missing argument")
	bad := append([]any(nil), good...)
	bad[3] = 3 // plain int, not int32
	assert.Error(t, x.Check(bad))
	bad = append([]any(nil), good...)
	bad[2] = fakeImage{}
	assert.Error(t, x.Check(bad))
}

func TestErrorKinds(t *testing.T) {
	err := Wrap(KindTransfer, "download", errors.New("boom"))
	assert.True(t, errors.Is(err, ErrTransfer))
	assert.False(t, errors.Is(err, ErrDispatch))
	assert.Contains(t, err.Error(), "TransferError in download: boom")
	assert.Nil(t, Wrap(KindTransfer, "x", nil))

	var cerr error = &CompileError{Log: "line 3: error"}
	assert.True(t, errors.Is(cerr, ErrCompile))
	assert.Contains(t, cerr.Error(), "line 3: error")
}

func TestHostImageValidate(t *testing.T) {
	img := NewHostImage(FormatRGBA, 3, 2)
	assert.Equal(t, 12, img.Stride())
	assert.NoError(t, img.Validate())

	img.Pix = img.Pix[:5]
	assert.True(t, errors.Is(img.Validate(), ErrInvalidArgument))

	assert.Error(t, HostImage{Format: ImageFormat{Order: "BGRA", Type: ChannelTypeUNormInt8}, Width: 1, Height: 1, Pix: []byte{0, 0, 0, 0}}.Validate())
}

func TestParseDeviceType(t *testing.T) {
	dt, err := ParseDeviceType("gpu")
	require.NoError(t, err)
	assert.Equal(t, DeviceTypeGPU, dt)
	dt, err = ParseDeviceType("")
	require.NoError(t, err)
	assert.True(t, dt.Matches(DeviceTypeCPU))
	_, err = ParseDeviceType("fpga")
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestWorkGroupExceeds(t *testing.T) {
	huge := math.MaxInt/2 + 1
	tests := []struct {
		local [2]int
		max   int
		want  bool
	}{
		{[2]int{16, 16}, 256, false},
		{[2]int{16, 17}, 256, true},
		{[2]int{1, 256}, 256, false},
		{[2]int{257, 1}, 256, true},
		{[2]int{huge, huge}, 256, true},
		{[2]int{3, huge}, 1 << 20, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WorkGroupExceeds(tt.local, tt.max), "%v max %d", tt.local, tt.max)
	}
}
