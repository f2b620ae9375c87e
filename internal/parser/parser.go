// Package parser maps raw public data API items onto typed notices.
package parser

import (
	"fmt"
	"strconv"
	"time"

	"sjsage522/bidnoticeworker/internal/models"
	"sjsage522/bidnoticeworker/logger"
)

// Spec document slots returned by the API (ntceSpecDocUrl1..10)
const specDocSlots = 10

// Parser converts RawItem values into BidNotice records. Field parse
// failures never fail the record; they are logged at debug level and the
// field is left nil.
type Parser struct {
	log *logger.Logger
}

// New creates a parser
func New() *Parser {
	return &Parser{log: logger.ForParser()}
}

// Parse converts one raw item. The result may be invalid (see BidNotice.Valid).
func (p *Parser) Parse(raw models.RawItem) (*models.BidNotice, error) {
	if raw == nil {
		return nil, fmt.Errorf("nil item")
	}

	f := fieldReader{raw: raw, p: p}
	n := &models.BidNotice{
		BidNoticeNo:          raw.String("bidNtceNo"),
		BidNoticeOrd:         raw.String("bidNtceOrd"),
		BidNoticeName:        raw.String("bidNtceNm"),
		ReNoticeYN:           ParseYN(raw.String("reNtceYn")),
		RegistrationTypeName: raw.String("rgstTyNm"),
		NoticeKindName:       raw.String("ntceKindNm"),
		InternationalBidYN:   ParseYN(raw.String("intrbidYn")),
		NoticeDate:           f.datetime("bidNtceDt"),
		RefNo:                raw.String("refNo"),

		NoticeInstitutionCode: raw.String("ntceInsttCd"),
		NoticeInstitutionName: raw.String("ntceInsttNm"),
		DemandInstitutionCode: raw.String("dminsttCd"),
		DemandInstitutionName: raw.String("dminsttNm"),
		BidMethodName:         raw.String("bidMethdNm"),
		ContractMethodName:    raw.String("cntrctCnclsMthdNm"),
		OfficerName:           raw.String("ntceInsttOfclNm"),
		OfficerTel:            raw.String("ntceInsttOfclTelNo"),
		OfficerEmail:          raw.String("ntceInsttOfclEmailAdrs"),
		ExecutorName:          raw.String("exctvNm"),
		DemandOfficerEmail:    raw.String("dminsttOfclEmailAdrs"),

		QualificationRegDeadline: f.datetime("bidQlfctRgstDt"),
		JointSupplyReceiptMethod: raw.String("cmmnSpldmdAgrmntRcptdocMethd"),
		JointSupplyDeadline:      f.datetime("cmmnSpldmdAgrmntClseDt"),
		JointSupplyRegionLimitYN: ParseYN(raw.String("cmmnSpldmdCorpRgnLmtYn")),
		JointSupplyMethodCode:    raw.String("cmmnSpldmdMethdCd"),
		JointSupplyMethodName:    raw.String("cmmnSpldmdMethdNm"),

		BidBeginDate:     f.datetime("bidBeginDt"),
		BidCloseDate:     f.datetime("bidClseDt"),
		OpeningDate:      f.datetime("opengDt"),
		OpeningPlace:     raw.String("opengPlce"),
		RebidOpeningDate: f.datetime("rbidOpengDt"),
		BriefingDate:     f.datetime("dcmtgOprtnDt"),
		BriefingPlace:    raw.String("dcmtgOprtnPlce"),

		SpecDocuments:   specDocuments(raw),
		StdNoticeDocURL: raw.String("stdNtceDocUrl"),
		DetailURL:       raw.String("bidNtceDtlUrl"),
		NoticeURL:       raw.String("bidNtceUrl"),

		RebidPermitYN:               ParseYN(raw.String("rbidPermsnYn")),
		PQApplyReceiptMethod:        raw.String("pqApplDocRcptMthdNm"),
		PQApplyReceiptDate:          f.datetime("pqApplDocRcptDt"),
		TPEvalApplyMethod:           raw.String("tpEvalApplMthdNm"),
		TPEvalApplyDeadline:         f.datetime("tpEvalApplClseDt"),
		PerformanceDocReceiptMethod: raw.String("arsltApplDocRcptMthdNm"),
		PerformanceDocReceiptDate:   f.datetime("arsltReqstdocRcptDt"),

		JointContractRegions:    jointRegions(raw),
		RegionJointContractRate: raw.String("rgnDutyJntcontrctRt"),
		RegionLimitBasisCode:    raw.String("rgnLmtBidLocplcJdgmBssCd"),
		RegionLimitBasisName:    raw.String("rgnLmtBidLocplcJdgmBssNm"),

		DetailBidYN:              ParseYN(raw.String("dtlsBidYn")),
		BidParticipationLimitYN:  ParseYN(raw.String("bidPrtcptLmtYn")),
		ParticipationFeeYN:       ParseYN(raw.String("bidPrtcptFeePaymntYn")),
		BidBondYN:                ParseYN(raw.String("bidGrntymnyPaymntYn")),
		GeneralServiceYN:         ParseYN(raw.String("ppswGnrlSrvceYn")),
		ProductClassLimitYN:      ParseYN(raw.String("prdctClsfcLmtYn")),
		ManufactureYN:            ParseYN(raw.String("mnfctYn")),
		BranchBidPermitYN:        ParseYN(raw.String("brffcBidprcPermsnYn")),
		DesignatedCompetitionYN:  ParseYN(raw.String("dsgntCmptYn")),
		PerformanceCompetitionYN: ParseYN(raw.String("arsltCmptYn")),
		PQEvalYN:                 ParseYN(raw.String("pqEvalYn")),
		TPEvalYN:                 ParseYN(raw.String("tpEvalYn")),
		NoticeDescriptionYN:      ParseYN(raw.String("ntceDscrptYn")),
		InfoBizYN:                ParseYN(raw.String("infoBizYn")),
		IndustryLimitYN:          ParseYN(raw.String("indstrytyLmtYn")),

		PriceDecisionMethod:     raw.String("prearngPrceDcsnMthdNm"),
		ReservePriceMethod:      raw.String("rsrvtnPrceReMkngMthdNm"),
		TotalPrelimPriceCount:   f.amount("totPrdprcNum"),
		DrawnPrelimPriceCount:   f.amount("drwtPrdprcNum"),
		AssignedBudget:          f.amount("asignBdgtAmt"),
		EstimatedPrice:          f.amount("presmptPrce"),
		ParticipationFee:        f.amount("bidPrtcptFee"),
		VAT:                     f.amount("VAT"),
		IndustryVAT:             f.amount("indutyVAT"),
		SuccessfulBidLowerRate:  f.rate("sucsfbidLwltRate"),
		SuccessfulBidMethodCode: raw.String("sucsfbidMthdCd"),
		SuccessfulBidMethodName: raw.String("sucsfbidMthdNm"),

		CreditorName:          raw.String("crdtrNm"),
		ServiceDivisionName:   raw.String("srvceDivNm"),
		PurchaseProductList:   raw.String("purchsObjPrdctList"),
		UnifiedNoticeNo:       raw.String("untyNtceNo"),
		OrderPlanNo:           raw.String("orderPlanUntyNo"),
		PriorSpecRegNo:        raw.String("bfSpecRgstNo"),
		ChangeReason:          raw.String("chgNtceRsn"),
		ProcurementLargeClass: raw.String("pubPrcrmntLrgClsfcNm"),
		ProcurementMidClass:   raw.String("pubPrcrmntMidClsfcNm"),
		ProcurementClassNo:    raw.String("pubPrcrmntClsfcNo"),
		ProcurementClassName:  raw.String("pubPrcrmntClsfcNm"),

		RegisteredAt: f.datetime("rgstDt"),
		ChangedAt:    f.datetime("chgDt"),

		Source: models.SourceAPI,
	}
	return n, nil
}

// ParseBatch parses every item, skipping and logging the ones that fail.
// Validity is not checked here; see FilterValid.
func (p *Parser) ParseBatch(items []models.RawItem) []*models.BidNotice {
	parsed := make([]*models.BidNotice, 0, len(items))
	for i, item := range items {
		n, err := p.Parse(item)
		if err != nil {
			p.log.Warn().Err(err).Int("index", i).Msg("Skipping unparseable item")
			continue
		}
		parsed = append(parsed, n)
	}

	p.log.Debug().Int("parsed", len(parsed)).Int("total", len(items)).Msg("Parsed batch")
	return parsed
}

// FilterValid drops notices without a number or name and returns how many
// were dropped
func FilterValid(notices []*models.BidNotice) ([]*models.BidNotice, int) {
	valid := make([]*models.BidNotice, 0, len(notices))
	for _, n := range notices {
		if n != nil && n.Valid() {
			valid = append(valid, n)
		}
	}
	return valid, len(notices) - len(valid)
}

type fieldReader struct {
	raw models.RawItem
	p   *Parser
}

func (f fieldReader) datetime(key string) *time.Time {
	r := ParseDateTime(f.raw.String(key))
	f.report(key, r.Err)
	return r.Ptr()
}

func (f fieldReader) amount(key string) *int64 {
	r := ParseAmount(f.raw.String(key))
	f.report(key, r.Err)
	return r.Ptr()
}

func (f fieldReader) rate(key string) *float64 {
	r := ParseRate(f.raw.String(key))
	f.report(key, r.Err)
	return r.Ptr()
}

func (f fieldReader) report(key string, err error) {
	if err == nil {
		return
	}
	f.p.log.Debug().
		Str("notice", f.raw.String("bidNtceNo")).
		Str("field", key).
		Err(err).
		Msg("Field left empty")
}

func specDocuments(raw models.RawItem) []models.Attachment {
	var docs []models.Attachment
	for i := 1; i <= specDocSlots; i++ {
		u := raw.String("ntceSpecDocUrl" + strconv.Itoa(i))
		if u == "" {
			continue
		}
		name := raw.String("ntceSpecFileNm" + strconv.Itoa(i))
		if name == "" {
			name = fmt.Sprintf("spec-%d", i)
		}
		docs = append(docs, models.Attachment{Filename: name, URL: u})
	}
	return docs
}

func jointRegions(raw models.RawItem) []string {
	var regions []string
	for i := 1; i <= 3; i++ {
		if r := raw.String("jntcontrctDutyRgnNm" + strconv.Itoa(i)); r != "" {
			regions = append(regions, r)
		}
	}
	return regions
}
