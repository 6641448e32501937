package httpapi

import (
	"bytes"
	"fmt"

	"hearttrack-data/internal/domain"

	"github.com/xuri/excelize/v2"
)

// ReadingsExportHeader 读数导出表头
var ReadingsExportHeader = []string{
	"Reading Time (UTC)",
	"Heart Rate (bpm)",
	"SpO2 (%)",
}

// GenerateReadingsExport 生成读数导出 Excel 文件
// rows 为空时只生成表头
func GenerateReadingsExport(device *deviceRef, rows []*domain.Reading) ([]byte, error) {
	f := excelize.NewFile()
	// Note: Don't defer Close() here, because WriteTo needs the file to be open

	sheetName := "Readings"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	// 第一行：设备标识
	if err := f.SetCellValue(sheetName, "A1", fmt.Sprintf("Device: %s (%s)", device.Label, device.HardwareID)); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write device row: %w", err)
	}

	// 第二行：表头
	for col, header := range ReadingsExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 2)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to resolve header cell: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to style header: %w", err)
		}
	}

	// 数据行
	for i, reading := range rows {
		rowIdx := i + 3
		values := []any{
			reading.ReadingTime.UTC().Format("2006-01-02 15:04:05"),
			reading.HeartRate,
		}
		if reading.SpO2 != nil {
			values = append(values, *reading.SpO2)
		} else {
			values = append(values, "")
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, rowIdx)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to resolve data cell: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to write data cell: %w", err)
			}
		}
	}

	// 列宽
	if err := f.SetColWidth(sheetName, "A", "A", 22); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}
	if err := f.SetColWidth(sheetName, "B", "C", 16); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close workbook: %w", err)
	}
	return buf.Bytes(), nil
}
