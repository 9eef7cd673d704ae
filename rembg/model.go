package rembg

import "fmt"

// Model identifies a segmentation model served by the inference backend.
type Model string

const (
	U2Net               Model = "u2net"
	U2NetP              Model = "u2netp"
	U2NetHumanSeg       Model = "u2net_human_seg"
	U2NetClothSeg       Model = "u2net_cloth_seg"
	ISNetGeneralUse     Model = "isnet-general-use"
	ISNetAnime          Model = "isnet-anime"
	BiRefNetGeneral     Model = "birefnet-general"
	BiRefNetGeneralLite Model = "birefnet-general-lite"
	BiRefNetPortrait    Model = "birefnet-portrait"
	BiRefNetDIS         Model = "birefnet-dis"
	BiRefNetMassive     Model = "birefnet-massive"
	Silueta             Model = "silueta"
	BriaRMBG            Model = "bria-rmbg"
	SAM                 Model = "sam"

	DefaultModel = BiRefNetGeneral
)

type Family string

const (
	FamilyU2Net    Family = "u2net"
	FamilyISNet    Family = "isnet"
	FamilyBiRefNet Family = "birefnet"
	FamilyBria     Family = "bria"
	FamilySAM      Family = "sam"
)

// ModelInfo is the loader configuration of one model.
type ModelInfo struct {
	Name   Model
	Family Family
	// Weights is the checkpoint name used by backends that load weights by
	// file name.
	Weights string
}

var modelTable = []ModelInfo{
	{Name: U2Net, Family: FamilyU2Net, Weights: "u2net.onnx"},
	{Name: U2NetP, Family: FamilyU2Net, Weights: "u2netp.onnx"},
	{Name: U2NetHumanSeg, Family: FamilyU2Net, Weights: "u2net_human_seg.onnx"},
	{Name: U2NetClothSeg, Family: FamilyU2Net, Weights: "u2net_cloth_seg.onnx"},
	{Name: ISNetGeneralUse, Family: FamilyISNet, Weights: "isnet-general-use.onnx"},
	{Name: ISNetAnime, Family: FamilyISNet, Weights: "isnet-anime.onnx"},
	{Name: BiRefNetGeneral, Family: FamilyBiRefNet, Weights: "General.safetensors"},
	{Name: BiRefNetGeneralLite, Family: FamilyBiRefNet, Weights: "General-Lite.safetensors"},
	{Name: BiRefNetPortrait, Family: FamilyBiRefNet, Weights: "Portrait.safetensors"},
	{Name: BiRefNetDIS, Family: FamilyBiRefNet, Weights: "DIS.safetensors"},
	{Name: BiRefNetMassive, Family: FamilyBiRefNet, Weights: "Massive.safetensors"},
	{Name: Silueta, Family: FamilyU2Net, Weights: "silueta.onnx"},
	{Name: BriaRMBG, Family: FamilyBria, Weights: "bria-rmbg-2.0.onnx"},
	{Name: SAM, Family: FamilySAM, Weights: "vit_b-encoder-quant.onnx"},
}

var modelIndex = func() map[Model]ModelInfo {
	m := make(map[Model]ModelInfo, len(modelTable))
	for _, info := range modelTable {
		m[info.Name] = info
	}
	return m
}()

// Models lists the supported models in their canonical order.
func Models() []Model {
	out := make([]Model, len(modelTable))
	for i, info := range modelTable {
		out[i] = info.Name
	}
	return out
}

func LookupModel(name string) (ModelInfo, error) {
	info, ok := modelIndex[Model(name)]
	if !ok {
		return ModelInfo{}, fmt.Errorf("%w %q", ErrUnknownModel, name)
	}
	return info, nil
}
