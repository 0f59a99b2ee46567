package dynamic

import "bili_push/internal/domain"

// CategoryOf maps a dynamic type to its category. Unrecognized types map to
// domain.CategoryUnknown.
func CategoryOf(dynamicType string) domain.Category {
	switch dynamicType {
	case TypeDraw, TypeCommonVertical, TypeCommonSquare:
		return domain.CategoryGeneral
	case TypeArticle:
		return domain.CategoryArticle
	case TypeAV:
		return domain.CategoryVideo
	case TypeWord:
		return domain.CategoryText
	case TypeForward:
		return domain.CategoryRepost
	case TypeLiveRcmd, TypeLive:
		return domain.CategoryLivePush
	default:
		return domain.CategoryUnknown
	}
}
